package scheduler

import "strings"

// ProviderOther is the fallback bucket for models no rule matches. Unmapped
// models are flagged in logs rather than silently bucketed, since a
// misclassified model would dodge its provider quota.
const ProviderOther = "other"

// ProviderRule maps a model-name prefix to a provider.
type ProviderRule struct {
	Prefix   string
	Provider string
}

// ProviderTable classifies models into upstream providers by name prefix.
// Rules are checked in order; the first match wins. It is an explicit,
// testable lookup table so a new naming scheme is a one-line addition.
type ProviderTable []ProviderRule

// DefaultProviderTable returns the built-in classification rules.
func DefaultProviderTable() ProviderTable {
	return ProviderTable{
		{Prefix: "opus", Provider: "anthropic"},
		{Prefix: "sonnet", Provider: "anthropic"},
		{Prefix: "haiku", Provider: "anthropic"},
		{Prefix: "claude", Provider: "anthropic"},
		{Prefix: "gemini", Provider: "google"},
		{Prefix: "gpt", Provider: "openai"},
		{Prefix: "o1", Provider: "openai"},
		{Prefix: "o3", Provider: "openai"},
		{Prefix: "o4", Provider: "openai"},
		{Prefix: "codex", Provider: "openai"},
		{Prefix: "grok", Provider: "xai"},
		{Prefix: "deepseek", Provider: "deepseek"},
	}
}

// Classify returns the provider for the given model name and whether a rule
// matched. Model names are normalized to lower case before matching.
func (t ProviderTable) Classify(model string) (string, bool) {
	normalized := NormalizeModel(model)
	for _, rule := range t {
		if strings.HasPrefix(normalized, rule.Prefix) {
			return rule.Provider, true
		}
	}
	return ProviderOther, false
}

// NormalizeModel lower-cases and trims a model identifier so quota lookups
// and rate-limit comparisons are case-insensitive.
func NormalizeModel(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

// defaultModelCaps are the built-in per-model in-flight caps for well-known
// models, overridable through SchedulerConfig.ModelCaps.
var defaultModelCaps = map[string]int{
	"opus":   2,
	"sonnet": 3,
	"haiku":  4,
	"gemini": 3,
	"gpt":    3,
}
