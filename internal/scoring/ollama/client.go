package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	defaultModel = "phi4:latest"
	defaultHost  = "http://localhost:11434"
)

// Generator runs ranking prompts against a local Ollama server.
type Generator struct {
	client *api.Client
	model  string
}

// NewGenerator connects to host, or to OLLAMA_HOST when host is empty.
func NewGenerator(host, model string) (*Generator, error) {
	var client *api.Client
	if host = strings.TrimSpace(host); host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			host = defaultHost
		} else {
			client = c
		}
	}
	if client == nil {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", host, err)
		}
		// Deadlines come from the caller's context.
		client = api.NewClient(u, &http.Client{})
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &Generator{client: client, model: model}, nil
}

// GenerateContent forces JSON output and collects the streamed chunks.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("ollama generator is not initialized")
	}
	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt + "\n\nReturn ONLY strict JSON. No extra text.",
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
	}
	var out strings.Builder
	if err := g.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", errors.New("ollama returned empty response")
	}
	return out.String(), nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
