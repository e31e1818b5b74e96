package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamaha/sagitta-sub008/internal/config"
)

func TestHTTPEmbedderMapsAuthorizationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer server.Close()

	cfg := config.EmbeddingConfig{BaseURL: server.URL, Path: "/embeddings", APIKey: "abc", APIHeader: "Authorization", Dimensions: 2}
	e := NewHTTPEmbedder(cfg)
	vecs, err := e.Embed(t.Context(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
}

func TestHTTPEmbedderMismatchedCountIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{0.1}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer server.Close()

	cfg := config.EmbeddingConfig{BaseURL: server.URL, Path: "/embeddings", Dimensions: 1}
	e := NewHTTPEmbedder(cfg)
	_, err := e.Embed(t.Context(), []string{"a", "b"})
	require.Error(t, err)
}

func TestHTTPEmbedderRejectsEmptyInput(t *testing.T) {
	e := NewHTTPEmbedder(config.EmbeddingConfig{})
	_, err := e.Embed(t.Context(), nil)
	require.Error(t, err)
}

func TestHTTPEmbedderNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	cfg := config.EmbeddingConfig{BaseURL: server.URL, Path: "/embeddings"}
	e := NewHTTPEmbedder(cfg)
	_, err := e.Embed(t.Context(), []string{"hi"})
	require.Error(t, err)
}
