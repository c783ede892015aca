package ai

import "context"

// Generator binds a client to one model configuration.
type Generator struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewGenerator(client *OpenAICompatibleClient, cfg ChatConfig) *Generator {
	return &Generator{client: client, cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	return g.client.Complete(ctx, g.cfg, messages)
}

func (g *Generator) Stream(ctx context.Context, messages []ChatMessage) (<-chan StreamEvent, error) {
	return g.client.Stream(ctx, g.cfg, messages)
}

func (g *Generator) Model() string {
	return g.cfg.Model
}
