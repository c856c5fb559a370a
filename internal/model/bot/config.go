package bot

import (
	"errors"
	"fmt"
	"slices"
)

// Provider names one of the supported completion backends.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
)

var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrModelNotInVocabulary = errors.New("model is not offered by provider")
)

// ModelCatalog lists the model identifiers a provider accepts. The first entry is the default.
type ModelCatalog struct {
	Provider Provider `json:"provider"`
	Label    string   `json:"label"`
	Models   []string `json:"models"`
}

var catalogs = []ModelCatalog{
	{
		Provider: ProviderOpenAI,
		Label:    "OpenAI",
		Models:   []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
	},
	{
		Provider: ProviderGemini,
		Label:    "Google Gemini",
		Models:   []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash"},
	},
	{
		Provider: ProviderArk,
		Label:    "Volcengine Ark",
		Models:   []string{"doubao-1-5-pro-32k-250115", "doubao-1-5-lite-32k-250115", "doubao-seed-1-6-250615"},
	},
}

// Providers returns the model vocabulary of every supported provider.
func Providers() []ModelCatalog {
	out := make([]ModelCatalog, len(catalogs))
	for i, c := range catalogs {
		out[i] = ModelCatalog{Provider: c.Provider, Label: c.Label, Models: slices.Clone(c.Models)}
	}
	return out
}

func catalogFor(p Provider) (ModelCatalog, bool) {
	for _, c := range catalogs {
		if c.Provider == p {
			return c, true
		}
	}
	return ModelCatalog{}, false
}

// Known reports whether p is a supported provider.
func (p Provider) Known() bool {
	_, ok := catalogFor(p)
	return ok
}

// DefaultModel returns the model selected when switching to p.
func DefaultModel(p Provider) string {
	c, ok := catalogFor(p)
	if !ok || len(c.Models) == 0 {
		return ""
	}
	return c.Models[0]
}

// Supports reports whether model belongs to the vocabulary of p.
func Supports(p Provider, model string) bool {
	c, ok := catalogFor(p)
	return ok && slices.Contains(c.Models, model)
}

// Configuration describes the assistant the engine drives. It is passed by value so that
// in-flight work keeps the settings it started with.
type Configuration struct {
	DisplayName      string   `json:"displayName" koanf:"display_name"`
	ThemeID          string   `json:"themeId" koanf:"theme_id"`
	AvatarRef        string   `json:"avatarRef" koanf:"avatar_ref"`
	SystemPrompt     string   `json:"systemPrompt" koanf:"system_prompt"`
	KnowledgeBase    string   `json:"knowledgeBase" koanf:"knowledge_base"`
	Provider         Provider `json:"provider" koanf:"provider"`
	ModelID          string   `json:"modelId" koanf:"model_id"`
	Credential       string   `json:"credential" koanf:"credential"`
	LoggingTargetURL string   `json:"loggingTargetUrl" koanf:"logging_target_url"`
}

// WithProvider switches the provider. A change of provider always resets the model to the
// new provider's default.
func (c Configuration) WithProvider(p Provider) Configuration {
	if c.Provider == p {
		return c
	}
	c.Provider = p
	c.ModelID = DefaultModel(p)
	return c
}

// Validate checks the provider/model pairing.
func (c Configuration) Validate() error {
	if !c.Provider.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if !Supports(c.Provider, c.ModelID) {
		return fmt.Errorf("%w: %q is not a %s model", ErrModelNotInVocabulary, c.ModelID, c.Provider)
	}
	return nil
}

// Seed provides the configuration used before anything has been saved.
func Seed() Configuration {
	return Configuration{
		DisplayName: "Campus Health Assistant",
		ThemeID:     "teal",
		AvatarRef:   "stethoscope",
		SystemPrompt: "You are a friendly health information assistant. Keep answers short. " +
			"When it helps the user, end your reply with a menu of follow-up topics written as " +
			"{Option one | Option two}.",
		Provider: ProviderGemini,
		ModelID:  DefaultModel(ProviderGemini),
	}
}
