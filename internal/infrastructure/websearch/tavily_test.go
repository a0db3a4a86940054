package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-ai-bot/internal/config"
)

func TestSearchSendsQueryAndParsesResults(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(searchResponse{Results: []Result{
			{Title: "发布清单", URL: "https://example.com/a", Content: "发布前先跑冒烟测试"},
		}})
	}))
	defer srv.Close()

	c := NewClient(&config.WebSearchConfig{
		APIKey:      "key-1",
		BaseURL:     srv.URL,
		SearchDepth: "basic",
		MaxResults:  5,
		Timeout:     2 * time.Second,
	})

	results, err := c.Search(context.Background(), "发布流程")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "发布清单", results[0].Title)

	assert.Equal(t, "key-1", got.APIKey)
	assert.Equal(t, "发布流程", got.Query)
	assert.Equal(t, "basic", got.SearchDepth)
	assert.Equal(t, 5, got.MaxResults)
}

func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(&config.WebSearchConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
