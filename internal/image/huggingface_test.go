package image

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newGenerator(t *testing.T, handler http.HandlerFunc) *HuggingFaceGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &HuggingFaceGenerator{Client: srv.Client(), Endpoint: srv.URL + "/models/sdxl", Token: "hf_test"}
}

func TestGenerate(t *testing.T) {
	g := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/sdxl", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, map[string]any{"inputs": "a red fox in snow"}, payload)

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})

	data, err := g.Generate(context.Background(), "a red fox in snow")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestGenerateFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"unauthorized": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Authorization header is correct, but the token seems invalid"}`, http.StatusUnauthorized)
		},
		"model loading": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
		},
		"json body": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"error":"bad inputs"}`))
		},
		"empty body": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			g := newGenerator(t, handler)
			data, err := g.Generate(context.Background(), "castle at dusk")
			assert.Nil(t, data)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		})
	}
}

func TestGenerateNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	g := &HuggingFaceGenerator{Client: http.DefaultClient, Endpoint: srv.URL, Token: "hf_test"}
	_, err := g.Generate(context.Background(), "castle at dusk")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateCancelled(t *testing.T) {
	release := make(chan struct{})
	g := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "castle at dusk")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.True(t, errors.Is(err, context.Canceled))
}
