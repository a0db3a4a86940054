// Package websearch 提供 Tavily 搜索 API 的 HTTP 客户端
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"groupchat-ai-bot/internal/config"
)

var tracer = otel.Tracer("websearch")

// Result 单条搜索结果
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Client Tavily 搜索客户端
type Client struct {
	baseURL     string
	apiKey      string
	searchDepth string
	maxResults  int
	http        *http.Client
}

// NewClient 创建搜索客户端
func NewClient(cfg *config.WebSearchConfig) *Client {
	depth := cfg.SearchDepth
	if depth == "" {
		depth = "basic"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		searchDepth: depth,
		maxResults:  maxResults,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search 执行一次网页搜索
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "websearch.Search",
		trace.WithAttributes(attribute.String("search.depth", c.searchDepth)))
	defer span.End()

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: c.searchDepth,
		MaxResults:  c.maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("search api returned %d: %s", resp.StatusCode, string(raw))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unparsable search response: %w", err)
	}

	span.SetAttributes(attribute.Int("search.results", len(out.Results)))
	return out.Results, nil
}
