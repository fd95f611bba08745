// Package model parses and validates "provider/model" identifier strings.
package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskloop/taskloop/errors"
)

// DefaultModel is the fallback used when no model string is supplied or a
// non-strict parse cannot recover a usable identifier.
const DefaultModel = "openai/gpt-4o-mini"

// Validation patterns for the two halves of an identifier.
var (
	providerPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	modelPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Known provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderGoogle     = "google"
	ProviderMistral    = "mistral"
	ProviderMeta       = "meta"
	ProviderCohere     = "cohere"
	ProviderXAI        = "xai"
)

// commonModels lists well-known model names per provider. Used only for
// soft warnings so the parser stays forward-compatible with new models.
var commonModels = map[string][]string{
	ProviderOpenAI:     {"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"},
	ProviderAnthropic:  {"claude-3-opus", "claude-3-sonnet", "claude-3-haiku", "claude-3-5-sonnet"},
	ProviderOpenRouter: {"auto"},
	ProviderGoogle:     {"gemini-1.5-pro", "gemini-1.5-flash"},
	ProviderMistral:    {"mistral-large", "mistral-medium", "mistral-small"},
	ProviderMeta:       {"llama-3.1-405b", "llama-3.1-70b", "llama-3.1-8b"},
	ProviderCohere:     {"command-r-plus", "command-r", "command"},
	ProviderXAI:        {"grok-beta"},
}

// ParsedModel holds the result of parsing a model string. It is an immutable
// value; a fresh one is created per parse call.
type ParsedModel struct {
	// Provider is the normalized (lower-cased, trimmed) provider name.
	Provider string

	// Model is the trimmed model name. May itself contain separators.
	Model string

	// Original is the input string before normalization.
	Original string

	// Valid is true when no validation errors were recorded.
	Valid bool

	// Errors lists validation problems found during parsing.
	Errors []string

	// Warnings lists soft advisories (unknown model for a known provider).
	// Warnings never affect validity.
	Warnings []string

	// missingSeparator marks the one error class that triggers the
	// default-model fallback in routing.
	missingSeparator bool
}

// String returns the normalized "provider/model" form.
func (p ParsedModel) String() string {
	return Format(p.Provider, p.Model)
}

// HasCriticalErrors reports whether the input lacked the provider/model
// separator. Only this error class makes the router fall back to the
// default model; empty provider or model substrings are recorded as errors
// but do not force the fallback in non-strict mode.
func (p ParsedModel) HasCriticalErrors() bool {
	return p.missingSeparator
}

// Parse parses and validates a model string in "provider/model" form.
//
// Empty or blank input resolves to DefaultModel regardless of strictness.
// The split happens on the first separator only, so a model name may itself
// contain '/'. The provider half is lower-cased; both halves are trimmed
// before validation.
//
// In strict mode a missing separator, empty provider, or empty model returns
// a validation error. In non-strict mode every problem is recorded on the
// returned ParsedModel and the error result is always nil.
func Parse(modelString string, strict bool) (ParsedModel, error) {
	if strings.TrimSpace(modelString) == "" {
		return Parse(DefaultModel, false)
	}

	trimmed := strings.TrimSpace(modelString)
	parsed := ParsedModel{Original: modelString}

	var provider, modelName string
	if !strings.Contains(trimmed, "/") {
		msg := fmt.Sprintf("model string %q must contain '/' separator (format: provider/model)", trimmed)
		parsed.Errors = append(parsed.Errors, msg)
		parsed.missingSeparator = true
		if strict {
			return parsed, errors.Validation(msg)
		}
		// Recover by treating the whole input as a model name on the
		// default provider.
		provider, modelName = ProviderOpenAI, trimmed
	} else {
		parts := strings.SplitN(trimmed, "/", 2)
		provider, modelName = parts[0], parts[1]
	}

	provider = strings.ToLower(strings.TrimSpace(provider))
	modelName = strings.TrimSpace(modelName)
	parsed.Provider = provider
	parsed.Model = modelName

	if provider == "" {
		msg := "provider cannot be empty"
		parsed.Errors = append(parsed.Errors, msg)
		if strict {
			return parsed, errors.Validation(msg)
		}
	} else if !providerPattern.MatchString(provider) {
		msg := fmt.Sprintf("invalid provider format: %q", provider)
		parsed.Errors = append(parsed.Errors, msg)
		if strict {
			return parsed, errors.Validation(msg)
		}
	}

	if modelName == "" {
		msg := "model cannot be empty"
		parsed.Errors = append(parsed.Errors, msg)
		if strict {
			return parsed, errors.Validation(msg)
		}
	} else if !modelPattern.MatchString(modelName) {
		msg := fmt.Sprintf("invalid model format: %q", modelName)
		parsed.Errors = append(parsed.Errors, msg)
		if strict {
			return parsed, errors.Validation(msg)
		}
	}

	// Soft advisory only: unknown model for a known provider.
	if known, ok := commonModels[provider]; ok && provider != ProviderOpenRouter && modelName != "" {
		if !isCommonModel(modelName, known) {
			parsed.Warnings = append(parsed.Warnings,
				fmt.Sprintf("model %q not in common models for provider %q", modelName, provider))
		}
	}

	parsed.Valid = len(parsed.Errors) == 0
	return parsed, nil
}

// isCommonModel matches case-insensitively and accepts family-prefix
// variations (gpt-4o-2024... matches gpt-4o).
func isCommonModel(modelName string, known []string) bool {
	lower := strings.ToLower(modelName)
	for _, k := range known {
		k = strings.ToLower(k)
		if lower == k {
			return true
		}
		if family, _, ok := strings.Cut(k, "-"); ok && strings.HasPrefix(lower, family) {
			return true
		}
	}
	return false
}

// Default returns the default provider and model pair.
func Default() (provider, modelName string) {
	parsed, _ := Parse(DefaultModel, false)
	return parsed.Provider, parsed.Model
}

// DefaultParsed returns the default model as a ParsedModel, preserving the
// originally requested string for diagnostics.
func DefaultParsed(original string) ParsedModel {
	if original == "" {
		original = "default"
	}
	provider, modelName := Default()
	return ParsedModel{
		Provider: provider,
		Model:    modelName,
		Original: original,
		Valid:    true,
	}
}

// Format joins a provider and model into the standard string form.
func Format(provider, modelName string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "/" + strings.TrimSpace(modelName)
}

// IsOpenAIProvider reports whether the provider should use the direct
// OpenAI backend.
func IsOpenAIProvider(provider string) bool {
	return strings.ToLower(provider) == ProviderOpenAI
}

// RequiresAggregatorRouting reports whether the provider must go through
// the OpenRouter aggregator.
func RequiresAggregatorRouting(provider string) bool {
	return strings.ToLower(provider) != ProviderOpenAI
}

// SupportedProviders returns the known provider names.
func SupportedProviders() []string {
	return []string{
		ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderGoogle,
		ProviderMistral, ProviderMeta, ProviderCohere, ProviderXAI,
	}
}
