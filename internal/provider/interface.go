// Package provider selects and constructs the chat model that writes answers.
// Supported backends: Groq (default), OpenAI, Azure OpenAI, Ollama, Volcengine
// Ark and Google Gemini. Every backend is an eino chat model; Generator adapts
// one to the answer service with retries and tracing callbacks.
package provider

// Backend enumerates the supported generation providers.
type Backend string

const (
	// BackendGroq selects Groq's OpenAI-compatible endpoint.
	BackendGroq Backend = "groq"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

const (
	// DefaultGroqBaseURL is Groq's OpenAI-compatible API root.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	// DefaultGroqModel is the default Groq model.
	DefaultGroqModel = "llama-3.1-8b-instant"
	// DefaultMaxTokens caps generated answers.
	DefaultMaxTokens = 1000
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the sub-struct matching
// Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Groq        ProviderGroq
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Ark         ProviderArk
	Gemini      ProviderGemini

	Tuning SharedTuning
}

// ProviderGroq configures Groq.
type ProviderGroq struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderOpenAI configures the OpenAI API.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderOllama configures a local Ollama instance.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderArk configures Volcengine Ark.
type ProviderArk struct {
	APIKey string
	Model  string
}

// ProviderGemini configures Google Gemini.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Model returns the model or deployment name of the selected backend.
func (c *Config) Model() string {
	switch c.Backend {
	case BackendGroq:
		return c.Groq.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// Identity returns "backend/model" for logs and the status command.
func (c *Config) Identity() string {
	return string(c.Backend) + "/" + c.Model()
}
