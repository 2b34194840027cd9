package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/training"
	testingpkg "github.com/finz/cashflow-risk/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearArtifact(version string) *ModelArtifact {
	class := map[int]int{0: 3, 1: 2}
	return &ModelArtifact{
		Version: version,
		Metadata: training.Metadata{
			ModelType:         training.ModelLogistic,
			TrainedAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			FeatureNames:      []string{"a", "b"},
			ClassDistribution: class,
		},
		Pipeline: &training.Pipeline{
			FeatureNames: []string{"a", "b"},
			Imputer:      training.Imputer{Medians: []float64{1, 2}},
			Scaler:       &training.StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}},
			Model:        training.NewLinearModel([]float64{0.5, -1.5}, 0.25),
		},
	}
}

func baselineArtifact(version string) *ModelArtifact {
	class := 0
	return &ModelArtifact{
		Version: version,
		Metadata: training.Metadata{
			ModelType:      training.ModelBaseline,
			PredictedClass: &class,
			FeatureNames:   []string{"a"},
			Note:           domain.NoteSingleClassTraining,
		},
		Pipeline: &training.Pipeline{
			FeatureNames: []string{"a"},
			Imputer:      training.Imputer{Medians: []float64{0}},
			Model:        training.NewBaselineModel(0),
		},
	}
}

func TestNewVersion(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("X", 3600))
	v := NewVersion(now)

	assert.Regexp(t, regexp.MustCompile(`^v20240309_130507.000000_[0-9a-f]{6}$`), v)

	parsed, err := VersionTime(v)
	require.NoError(t, err)
	assert.Equal(t, now.UTC(), parsed)
}

func TestNewVersion_SortsByTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := []string{
		NewVersion(base.Add(2 * time.Hour)),
		NewVersion(base),
		NewVersion(base.Add(time.Second)),
	}
	sort.Strings(versions)

	for i := 1; i < len(versions); i++ {
		ti, _ := VersionTime(versions[i])
		tp, _ := VersionTime(versions[i-1])
		assert.True(t, ti.After(tp))
	}
}

func TestNewVersion_SubSecondOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		earlier := NewVersion(base)
		later := NewVersion(base.Add(500 * time.Millisecond))
		require.Less(t, earlier, later)
	}
	assert.Less(t, NewVersion(base), NewVersion(base.Add(time.Microsecond)))
}

func TestNextVersion(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no previous version uses now", func(t *testing.T) {
		parsed, err := VersionTime(NextVersion(now, ""))
		require.NoError(t, err)
		assert.Equal(t, now, parsed)
	})

	t.Run("same instant sorts after previous", func(t *testing.T) {
		prev := NewVersion(now)
		for i := 0; i < 50; i++ {
			next := NextVersion(now, prev)
			require.Greater(t, next, prev)
			prev = next
		}
	})

	t.Run("previous from the future is stepped past", func(t *testing.T) {
		future := now.Add(time.Hour)
		next := NextVersion(now, NewVersion(future))
		parsed, err := VersionTime(next)
		require.NoError(t, err)
		assert.Equal(t, future.Add(time.Microsecond), parsed)
	})

	t.Run("malformed previous is ignored", func(t *testing.T) {
		parsed, err := VersionTime(NextVersion(now, "latest"))
		require.NoError(t, err)
		assert.Equal(t, now, parsed)
	})
}

func TestVersionTime_Malformed(t *testing.T) {
	_, err := VersionTime("latest")
	assert.Error(t, err)
}

func TestEncodeDecode_PreservesPredictions(t *testing.T) {
	a := linearArtifact("v20240101_000000.000000_abcdef")
	b, err := Encode(a)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)

	assert.Equal(t, a.Version, got.Version)
	assert.Equal(t, a.Metadata.ClassDistribution, got.Metadata.ClassDistribution)
	x := []float64{0.3, -1}
	assert.InDelta(t, a.Pipeline.PositiveProba(x), got.Pipeline.PositiveProba(x), 1e-12)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not msgpack"))
	assert.Error(t, err)
}

func TestSQLiteStore_LoadLatestEmpty(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "models")
	defer cleanup()

	store := NewSQLiteStore(db.Conn(), zerolog.Nop())
	_, err := store.LoadLatest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_SaveAndLoadLatest(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "models")
	defer cleanup()

	ctx := context.Background()
	store := NewSQLiteStore(db.Conn(), zerolog.Nop())

	_, err := store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	require.NoError(t, err)
	_, err = store.Save(ctx, baselineArtifact("v20240201_000000.000000_bbbbbb"))
	require.NoError(t, err)
	_, err = store.Save(ctx, linearArtifact("v20231201_000000.000000_cccccc"))
	require.NoError(t, err)

	latest, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v20240201_000000.000000_bbbbbb", latest.Version)
	assert.Equal(t, training.ModelBaseline, latest.Metadata.ModelType)
	assert.Equal(t, 0.0, latest.Pipeline.PositiveProba([]float64{5}))
}

func TestSQLiteStore_UnpublishedIsInvisible(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "models")
	defer cleanup()

	ctx := context.Background()
	store := NewSQLiteStore(db.Conn(), zerolog.Nop())
	_, err := store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	require.NoError(t, err)

	// A half-written row from an interrupted save
	_, err = db.ExecContext(ctx, `
		INSERT INTO model_artifacts (version, model_type, trained_at, metadata, payload, published, created_at)
		VALUES ('v20990101_000000.000000_ffffff', 'logistic_regression', 0, '{}', x'00', 0, 0)
	`)
	require.NoError(t, err)

	latest, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v20240101_000000.000000_aaaaaa", latest.Version)
}

func TestSQLiteStore_DuplicateVersionFails(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "models")
	defer cleanup()

	ctx := context.Background()
	store := NewSQLiteStore(db.Conn(), zerolog.Nop())
	_, err := store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	require.NoError(t, err)
	_, err = store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	assert.Error(t, err, "artifacts are immutable")
}

func TestRunRepository(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "models")
	defer cleanup()

	ctx := context.Background()
	repo := NewRunRepository(db.Conn(), zerolog.Nop())
	now := time.Now().UTC().Truncate(time.Second)

	_, err := repo.Record(ctx, TrainingRun{Status: "failed", Error: "boom", StartedAt: now, FinishedAt: now})
	require.NoError(t, err)
	_, err = repo.Record(ctx, TrainingRun{Version: "v1", Status: "trained", ModelType: "dummy_constant", StartedAt: now, FinishedAt: now})
	require.NoError(t, err)

	runs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "trained", runs[0].Status)
	assert.Equal(t, "v1", runs[0].Version)
	assert.Equal(t, "boom", runs[1].Error)
	assert.Empty(t, runs[1].Version)
	assert.Equal(t, now, runs[1].StartedAt)
}

// fakeBucket is an in-memory S3 bucket serving both ObjectAPI and Uploader
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failGet error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if _, err := f.PutObject(ctx, in); err != nil {
		return nil, err
	}
	return &manager.UploadOutput{Key: in.Key}, nil
}

func TestS3Store_LoadLatestEmpty(t *testing.T) {
	bucket := newFakeBucket()
	store := NewS3Store(bucket, bucket, "risk-models", "prod", zerolog.Nop())

	_, err := store.LoadLatest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3Store_SaveAndLoad(t *testing.T) {
	bucket := newFakeBucket()
	store := NewS3Store(bucket, bucket, "risk-models", "/prod/", zerolog.Nop())
	ctx := context.Background()

	_, err := store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	require.NoError(t, err)

	assert.Contains(t, bucket.objects, "prod/artifacts/v20240101_000000.000000_aaaaaa.msgpack")
	assert.Equal(t, "v20240101_000000.000000_aaaaaa", string(bucket.objects["prod/LATEST"]))

	latest, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v20240101_000000.000000_aaaaaa", latest.Version)
}

func TestS3Store_OlderSaveDoesNotMoveLatest(t *testing.T) {
	bucket := newFakeBucket()
	store := NewS3Store(bucket, bucket, "risk-models", "", zerolog.Nop())
	ctx := context.Background()

	_, err := store.Save(ctx, linearArtifact("v20240201_000000.000000_bbbbbb"))
	require.NoError(t, err)
	_, err = store.Save(ctx, linearArtifact("v20240101_000000.000000_aaaaaa"))
	require.NoError(t, err)

	assert.Equal(t, "v20240201_000000.000000_bbbbbb", string(bucket.objects["LATEST"]))
	assert.Contains(t, bucket.objects, "artifacts/v20240101_000000.000000_aaaaaa.msgpack")
}

func TestS3Store_BreakerOpensOnRepeatedFailures(t *testing.T) {
	bucket := newFakeBucket()
	bucket.failGet = fmt.Errorf("connection reset")
	store := NewS3Store(bucket, bucket, "risk-models", "", zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := store.LoadLatest(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	}

	bucket.failGet = nil
	_, err := store.LoadLatest(context.Background())
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
