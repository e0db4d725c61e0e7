package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderTableClassify(t *testing.T) {
	t.Parallel()

	table := DefaultProviderTable()

	tests := []struct {
		model       string
		provider    string
		wantMatched bool
	}{
		{"opus", "anthropic", true},
		{"sonnet-4-5", "anthropic", true},
		{"haiku", "anthropic", true},
		{"claude-3-opus", "anthropic", true},
		{"gemini-2.5-pro", "google", true},
		{"gpt-5", "openai", true},
		{"o3-mini", "openai", true},
		{"codex", "openai", true},
		{"grok-4", "xai", true},
		{"deepseek-v3", "deepseek", true},
		{"  Sonnet  ", "anthropic", true},
		{"GPT-4o", "openai", true},
		{"llama-70b", ProviderOther, false},
		{"", ProviderOther, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			provider, matched := table.Classify(tt.model)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}
}

func TestNormalizeModel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sonnet-4", NormalizeModel("  Sonnet-4 "))
	assert.Equal(t, "", NormalizeModel("   "))
}

func TestClassifyFlagsUnmappedModelOnce(t *testing.T) {
	t.Parallel()

	s := NewSelector(&fakeTaskStore{}, &fakeModelLimitStore{}, nil, testSchedulerConfig(), nil)

	assert.Equal(t, ProviderOther, s.classify("llama-70b"))
	_, seen := s.unmappedModels.Load("llama-70b")
	assert.True(t, seen, "unmapped model should be recorded after first sighting")

	// Second classification of the same model takes the already-seen path.
	assert.Equal(t, ProviderOther, s.classify("llama-70b"))
}
