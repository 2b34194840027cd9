// Package explanation renders ranked risk drivers as short prose.
//
// Renderers only ever see a domain.DriverReport. They never receive raw
// transactions, so the text cannot mention anything the model did not rank.
package explanation

import (
	"context"
	"strings"

	"github.com/finz/cashflow-risk/internal/domain"
)

const (
	// BaselineSentence is returned for models that learned no feature weights
	BaselineSentence = "Insufficient historical stress signals were observed, so risk is assessed as stable."
	// NoDriversSentence is returned when a weighted model reports no drivers
	NoDriversSentence = "No individual feature stood out as a driver of risk."

	templateDriverCount = 2
)

// TemplateRenderer is the deterministic renderer used directly and as the GenAI fallback
type TemplateRenderer struct{}

// NewTemplateRenderer creates a template renderer
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render never fails
func (r *TemplateRenderer) Render(_ context.Context, report domain.DriverReport) (string, error) {
	return RenderTemplate(report), nil
}

// RenderTemplate names the top two drivers of a report
func RenderTemplate(report domain.DriverReport) string {
	if report.Type == domain.DriverReportBaseline {
		return BaselineSentence
	}
	if len(report.Drivers) == 0 {
		return NoDriversSentence
	}

	n := len(report.Drivers)
	if n > templateDriverCount {
		n = templateDriverCount
	}
	parts := make([]string, 0, n)
	for _, d := range report.Drivers[:n] {
		parts = append(parts, d.Feature+" contributed to risk")
	}
	return "Risk is driven primarily by " + strings.Join(parts, " and ") + "."
}

var _ domain.ExplanationRenderer = (*TemplateRenderer)(nil)
