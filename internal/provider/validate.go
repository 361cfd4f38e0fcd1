package provider

import (
	"fmt"
	"strings"

	"github.com/54b3r/paperqa-go/internal/rag"
)

func missing(field string) error {
	return &rag.ConfigurationError{Field: field, Reason: "is required"}
}

// Validate checks that the fields the selected backend needs are present.
// Errors are *rag.ConfigurationError naming the environment variable to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGroq:
		if c.Groq.APIKey == "" {
			return missing("GROQ_API_KEY")
		}
		if c.Groq.Model == "" {
			return missing("GROQ_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	default:
		return &rag.ConfigurationError{
			Field:  "MODEL_PROVIDER",
			Reason: fmt.Sprintf("unknown backend %q, valid values: groq, openai, azure, ollama, ark, gemini", c.Backend),
		}
	}
	if c.Tuning.MaxTokens < 0 {
		return &rag.ConfigurationError{Field: "MODEL_MAX_TOKENS", Reason: "must not be negative"}
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment is an o-series or
// codex model. Those reject max_tokens and temperature.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
