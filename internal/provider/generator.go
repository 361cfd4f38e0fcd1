package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/retry"
)

// Generator adapts an eino chat model to the answer service. Each call runs
// under the retry policy; failures that survive it surface as
// *rag.ProviderUnavailableError.
type Generator struct {
	model  model.BaseChatModel
	policy retry.Config
	name   string
}

// NewGenerator wraps m. name labels the model in tracing callbacks.
func NewGenerator(m model.BaseChatModel, policy retry.Config, name string) *Generator {
	return &Generator{model: m, policy: policy, name: name}
}

// Generate sends msgs to the model and returns the answer text.
func (g *Generator) Generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	// Direct component calls only reach the global handlers (Langfuse) once
	// the context carries a callback manager.
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "paperqa.answer",
		Type:      g.name,
		Component: components.ComponentOfChatModel,
	})

	text, err := retry.Do(ctx, g.policy, "generate", func(ctx context.Context) (string, error) {
		out, err := g.model.Generate(ctx, msgs)
		if err != nil {
			return "", err
		}
		if out == nil {
			return "", fmt.Errorf("provider: model returned no message")
		}
		return out.Content, nil
	})
	if err == nil {
		return strings.TrimSpace(text), nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return "", err
	}
	return "", &rag.ProviderUnavailableError{Provider: "generation", Err: err}
}
