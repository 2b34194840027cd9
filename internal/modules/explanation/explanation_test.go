package explanation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func logisticReport(features ...string) domain.DriverReport {
	report := domain.DriverReport{Type: domain.DriverReportLogistic}
	for i, f := range features {
		report.Drivers = append(report.Drivers, domain.Driver{Feature: f, Weight: float64(len(features) - i)})
	}
	return report
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		report   domain.DriverReport
		expected string
	}{
		{
			name:     "baseline",
			report:   domain.DriverReport{Type: domain.DriverReportBaseline, Drivers: []domain.Driver{}},
			expected: BaselineSentence,
		},
		{
			name:     "two of many drivers",
			report:   logisticReport("net_cash", "buffer_level", "inflow"),
			expected: "Risk is driven primarily by net_cash contributed to risk and buffer_level contributed to risk.",
		},
		{
			name:     "single driver",
			report:   logisticReport("outflow_rigidity_4w"),
			expected: "Risk is driven primarily by outflow_rigidity_4w contributed to risk.",
		},
		{
			name:     "no drivers",
			report:   domain.DriverReport{Type: domain.DriverReportLogistic},
			expected: NoDriversSentence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderTemplate(tt.report))

			text, err := NewTemplateRenderer().Render(context.Background(), tt.report)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

type fakeGenerator struct {
	text     string
	err      error
	calls    int
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}},
		},
	}, nil
}

func TestGenAIRenderer_UsesModelText(t *testing.T) {
	gen := &fakeGenerator{text: "  Falling net cash is the main driver.  "}
	r := NewGenAIRenderer(gen, GenAIConfig{}, zerolog.Nop())

	text, err := r.Render(context.Background(), logisticReport("net_cash"))
	require.NoError(t, err)
	assert.Equal(t, "Falling net cash is the main driver.", text)
	assert.Equal(t, DefaultModelName, gen.model)
}

func TestGenAIRenderer_PromptCarriesOnlyDrivers(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	r := NewGenAIRenderer(gen, GenAIConfig{Model: "test-model"}, zerolog.Nop())

	report := logisticReport("net_cash", "inflow")
	_, err := r.Render(context.Background(), report)
	require.NoError(t, err)

	require.Len(t, gen.contents, 1)
	require.Len(t, gen.contents[0].Parts, 1)

	var sent domain.DriverReport
	require.NoError(t, json.Unmarshal([]byte(gen.contents[0].Parts[0].Text), &sent))
	assert.Equal(t, report, sent)
	assert.Equal(t, "test-model", gen.model)
}

func TestGenAIRenderer_FallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	r := NewGenAIRenderer(gen, GenAIConfig{}, zerolog.Nop())

	report := logisticReport("net_cash", "buffer_level")
	text, err := r.Render(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, RenderTemplate(report), text)
}

func TestGenAIRenderer_FallsBackOnEmptyText(t *testing.T) {
	gen := &fakeGenerator{text: "   "}
	r := NewGenAIRenderer(gen, GenAIConfig{}, zerolog.Nop())

	text, err := r.Render(context.Background(), domain.DriverReport{Type: domain.DriverReportBaseline})
	require.NoError(t, err)
	assert.Equal(t, BaselineSentence, text)
}

func TestGenAIRenderer_BreakerStopsCalling(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("unavailable")}
	r := NewGenAIRenderer(gen, GenAIConfig{}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := r.Render(context.Background(), logisticReport("net_cash"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, gen.calls)
}
