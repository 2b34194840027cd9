// Package artifacts versions, serializes and stores fitted model pipelines.
package artifacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finz/cashflow-risk/internal/modules/training"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ModelArtifact is an immutable fitted pipeline plus its metadata
type ModelArtifact struct {
	Version  string             `msgpack:"version" json:"version"`
	Metadata training.Metadata  `msgpack:"metadata" json:"metadata"`
	Pipeline *training.Pipeline `msgpack:"pipeline" json:"-"`
}

// Store persists artifacts with write-then-publish semantics: an artifact is
// only visible to LoadLatest once it has been completely written.
type Store interface {
	Save(ctx context.Context, artifact *ModelArtifact) (string, error)
	LoadLatest(ctx context.Context) (*ModelArtifact, error)
}

const versionLayout = "20060102_150405.000000"

// NewVersion returns v<UTC timestamp to the microsecond>_<6 hex chars>.
// Versions from different microseconds sort lexicographically in creation order.
func NewVersion(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "v" + now.UTC().Format(versionLayout) + "_" + suffix
}

// NextVersion returns a version that sorts strictly after previous, using now
// unless previous was minted at or after it. An empty or unparseable previous
// is ignored.
func NextVersion(now time.Time, previous string) string {
	now = now.UTC().Truncate(time.Microsecond)
	if prev, err := VersionTime(previous); err == nil && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return NewVersion(now)
}

// VersionTime parses the timestamp part of a version string
func VersionTime(version string) (time.Time, error) {
	if len(version) < 1+len(versionLayout) || version[0] != 'v' {
		return time.Time{}, fmt.Errorf("malformed version %q", version)
	}
	return time.ParseInLocation(versionLayout, version[1:1+len(versionLayout)], time.UTC)
}

// Encode serializes an artifact with msgpack
func Encode(a *ModelArtifact) ([]byte, error) {
	if a.Pipeline == nil {
		return nil, fmt.Errorf("artifact %s has no pipeline", a.Version)
	}
	b, err := msgpack.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact %s: %w", a.Version, err)
	}
	return b, nil
}

// Decode deserializes and validates an artifact
func Decode(b []byte) (*ModelArtifact, error) {
	var a ModelArtifact
	if err := msgpack.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if a.Pipeline == nil {
		return nil, fmt.Errorf("artifact %s has no pipeline", a.Version)
	}
	if err := a.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("artifact %s is invalid: %w", a.Version, err)
	}
	return &a, nil
}
