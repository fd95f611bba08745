package model

import (
	"strings"
	"testing"

	"github.com/taskloop/taskloop/errors"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
	}{
		{"openai", "openai/gpt-4", "openai", "gpt-4"},
		{"anthropic", "anthropic/claude-3-sonnet", "anthropic", "claude-3-sonnet"},
		{"uppercase provider normalized", "OpenAI/gpt-4o", "openai", "gpt-4o"},
		{"whitespace trimmed", "  openai / gpt-4o-mini  ", "openai", "gpt-4o-mini"},
		{"dots and dashes in model", "meta/llama-3.1-70b", "meta", "llama-3.1-70b"},
		{"unknown provider ok", "acme/frontier-1", "acme", "frontier-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.input, false)
			if err != nil {
				t.Fatalf("Parse returned error in non-strict mode: %v", err)
			}
			if parsed.Provider != tt.wantProvider {
				t.Errorf("Provider = %q, want %q", parsed.Provider, tt.wantProvider)
			}
			if parsed.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", parsed.Model, tt.wantModel)
			}
			if !parsed.Valid {
				t.Errorf("Valid = false, errors: %v", parsed.Errors)
			}
		})
	}
}

func TestParse_SplitsOnFirstSeparatorOnly(t *testing.T) {
	parsed, err := Parse("openrouter/meta/llama-3.1-8b", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Provider != "openrouter" {
		t.Errorf("Provider = %q, want openrouter", parsed.Provider)
	}
	if parsed.Model != "meta/llama-3.1-8b" {
		t.Errorf("Model = %q, want meta/llama-3.1-8b", parsed.Model)
	}
}

func TestParse_EmptyResolvesToDefault(t *testing.T) {
	for _, input := range []string{"", "   "} {
		parsed, err := Parse(input, true)
		if err != nil {
			t.Fatalf("Parse(%q) strict should still default, got %v", input, err)
		}
		if parsed.Provider != "openai" || parsed.Model != "gpt-4o-mini" {
			t.Errorf("Parse(%q) = %s/%s, want openai/gpt-4o-mini", input, parsed.Provider, parsed.Model)
		}
	}
}

func TestParse_MissingSeparator(t *testing.T) {
	t.Run("strict fails loudly", func(t *testing.T) {
		_, err := Parse("gpt-4o", true)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !errors.Is(err, errors.ErrCodeValidation) {
			t.Errorf("error code = %v, want VALIDATION", errors.Code(err))
		}
	})

	t.Run("non-strict recovers with default provider", func(t *testing.T) {
		parsed, err := Parse("gpt-4o", false)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if parsed.Provider != "openai" || parsed.Model != "gpt-4o" {
			t.Errorf("recovered = %s/%s, want openai/gpt-4o", parsed.Provider, parsed.Model)
		}
		if parsed.Valid {
			t.Error("missing separator must invalidate the parse")
		}
		if !parsed.HasCriticalErrors() {
			t.Error("missing separator is the critical error class")
		}
	})
}

func TestParse_EmptyParts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty provider", "/gpt-4"},
		{"empty model", "openai/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input, true); err == nil {
				t.Error("strict mode should reject")
			}

			parsed, err := Parse(tt.input, false)
			if err != nil {
				t.Fatalf("non-strict Parse: %v", err)
			}
			if parsed.Valid {
				t.Error("empty part must invalidate the parse")
			}
			// Empty parts are errors but not fallback-triggering.
			if parsed.HasCriticalErrors() {
				t.Error("empty part must not count as a critical error")
			}
		})
	}
}

func TestParse_InvalidCharacters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"provider starts with digit", "4chan/model"},
		{"provider with space", "open ai/gpt-4"},
		{"model starts with dot", "openai/.hidden"},
		{"model with space", "openai/gpt 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.input, false)
			if err != nil {
				t.Fatalf("non-strict Parse: %v", err)
			}
			if parsed.Valid {
				t.Errorf("Parse(%q).Valid = true, want false", tt.input)
			}
		})
	}
}

func TestParse_CommonModelWarnings(t *testing.T) {
	parsed, err := Parse("openai/experimental-new-model", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.Valid {
		t.Error("unknown model name must stay valid (soft warning only)")
	}
	if len(parsed.Warnings) == 0 {
		t.Error("expected a soft warning for an unfamiliar model")
	}

	// Family-prefix variants are not warned about.
	parsed, _ = Parse("openai/gpt-4o-2024-08-06", false)
	if len(parsed.Warnings) != 0 {
		t.Errorf("family variant should not warn, got %v", parsed.Warnings)
	}

	// OpenRouter accepts anything without warnings.
	parsed, _ = Parse("openrouter/anything-at-all", false)
	if len(parsed.Warnings) != 0 {
		t.Errorf("openrouter models should not warn, got %v", parsed.Warnings)
	}
}

func TestPredicates(t *testing.T) {
	if !IsOpenAIProvider("openai") || !IsOpenAIProvider("OpenAI") {
		t.Error("IsOpenAIProvider should match case-insensitively")
	}
	if IsOpenAIProvider("anthropic") {
		t.Error("anthropic is not the direct provider")
	}
	if RequiresAggregatorRouting("openai") {
		t.Error("openai must not require aggregator routing")
	}
	if !RequiresAggregatorRouting("mistral") {
		t.Error("mistral requires aggregator routing")
	}
}

func TestDefault(t *testing.T) {
	provider, modelName := Default()
	if provider != "openai" || modelName != "gpt-4o-mini" {
		t.Errorf("Default() = %s/%s, want openai/gpt-4o-mini", provider, modelName)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(" OpenAI ", " gpt-4o "); got != "openai/gpt-4o" {
		t.Errorf("Format = %q, want openai/gpt-4o", got)
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) == 0 {
		t.Fatal("no supported providers")
	}
	joined := strings.Join(providers, ",")
	for _, want := range []string{"openai", "openrouter", "anthropic"} {
		if !strings.Contains(joined, want) {
			t.Errorf("supported providers missing %q", want)
		}
	}
}
