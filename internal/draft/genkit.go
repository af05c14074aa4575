package draft

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// GenkitConfig configures the LLM-backed generator.
type GenkitConfig struct {
	// Provider is "google", "openai" or "openai_compatible".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// BaseURL applies to the openai_compatible provider.
	BaseURL string `yaml:"base_url"`
}

// GenkitGenerator drafts replies through genkit with a configurable provider.
type GenkitGenerator struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
	llmOn  bool
}

// NewGenkitGenerator initializes the provider named in cfg. With no API key
// configured it still returns a generator, but every Draft call fails with a
// generation error so items are marked Failed instead of getting a canned
// reply sent to a real customer.
func NewGenkitGenerator(ctx context.Context, cfg GenkitConfig, logger *slog.Logger) *GenkitGenerator {
	if logger == nil {
		logger = slog.Default()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = envAPIKeyForProvider(provider)
	}
	modelID := strings.TrimSpace(cfg.Model)
	if modelID == "" {
		modelID = defaultModelForProvider(provider)
	}

	var g *genkit.Genkit
	llmOn := false

	switch provider {
	case "openai":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			llmOn = true
			logger.Info("draft generator initialized", "provider", "openai", "model", modelID)
		} else {
			g = genkit.Init(ctx)
			logger.Warn("OpenAI API key missing; draft generation disabled")
		}

	case "openai_compatible":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai_compatible",
				APIKey:   apiKey,
				BaseURL:  cfg.BaseURL,
			}))
			llmOn = true
			logger.Info("draft generator initialized", "provider", "openai_compatible", "model", modelID)
		} else {
			g = genkit.Init(ctx)
			logger.Warn("OpenAI-compatible API key missing; draft generation disabled")
		}

	case "google":
		if apiKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx,
				genkit.WithPlugins(&googlegenai.GoogleAI{}),
				genkit.WithDefaultModel("googleai/"+modelID),
			)
			llmOn = true
			logger.Info("draft generator initialized", "provider", "google", "model", "googleai/"+modelID)
		} else {
			g = genkit.Init(ctx)
			logger.Warn("Google API key missing; draft generation disabled")
		}

	default:
		g = genkit.Init(ctx)
		logger.Warn("unknown draft provider; draft generation disabled", "provider", provider)
	}

	return &GenkitGenerator{
		g:      g,
		model:  modelNameForProvider(provider, modelID),
		logger: logger,
		llmOn:  llmOn,
	}
}

// Enabled reports whether an LLM provider is configured.
func (d *GenkitGenerator) Enabled() bool {
	return d.llmOn
}

func (d *GenkitGenerator) Draft(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("empty inquiry text")
	}
	if !d.llmOn {
		return "", fmt.Errorf("no LLM provider configured")
	}

	resp, err := genkit.Generate(ctx, d.g,
		ai.WithModelName(d.model),
		ai.WithSystem(SystemPrompt(req.Tone)),
		ai.WithPrompt(UserPrompt(req)),
	)
	if err != nil {
		return "", fmt.Errorf("generate draft: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generator returned empty draft")
	}
	return text, nil
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case "openai", "openai_compatible":
		return "gpt-4o-mini"
	default:
		return "gemini-2.0-flash"
	}
}

func modelNameForProvider(provider, modelID string) string {
	switch provider {
	case "openai":
		return "openai/" + modelID
	case "openai_compatible":
		return "openai_compatible/" + modelID
	default:
		return "googleai/" + modelID
	}
}

func envAPIKeyForProvider(provider string) string {
	switch provider {
	case "openai", "openai_compatible":
		return os.Getenv("OPENAI_API_KEY")
	default:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			return v
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
}
