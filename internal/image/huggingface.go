package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dmorgan81/imagine/internal/log"
	"github.com/samber/do"
)

type request struct {
	Inputs string `json:"inputs"`
}

type HuggingFaceGenerator struct {
	Client   *http.Client
	Endpoint string
	Token    string
}

func NewHuggingFaceGenerator(i *do.Injector) (Generator, error) {
	return &HuggingFaceGenerator{
		Client:   do.MustInvoke[*http.Client](i),
		Endpoint: do.MustInvokeNamed[string](i, "endpoint"),
		Token:    do.MustInvokeNamed[string](i, "token"),
	}, nil
}

func (g *HuggingFaceGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("huggingface").With("endpoint", g.Endpoint)
	log.Info("generating image", "prompt", prompt)

	body, err := json.Marshal(request{Inputs: prompt})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.Token)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrGenerationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status code: %d, response: %s", ErrGenerationFailed, resp.StatusCode, string(data))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrGenerationFailed)
	}
	// The inference API reports some failures as a JSON document with a 2xx status.
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		return nil, fmt.Errorf("%w: expected image, got json: %s", ErrGenerationFailed, string(data))
	}

	log.Info("received image", "bytes", len(data))
	return data, nil
}
