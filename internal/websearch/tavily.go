// Package websearch provides a client for the Tavily search API, used to
// answer questions the ingested knowledge base cannot.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultTimeout    = 15 * time.Second
	defaultMaxResults = 3
)

// Result is one web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client communicates with the Tavily search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxResults int
}

// NewClient creates a Tavily client with the given API key. maxResults
// caps how many hits a single search returns; values below 1 fall back
// to the default.
func NewClient(apiKey string, maxResults int) *Client {
	if maxResults < 1 {
		maxResults = defaultMaxResults
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxResults: maxResults,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey string, maxResults int, baseURL string) *Client {
	c := NewClient(apiKey, maxResults)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs a web search and returns up to maxResults hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, MaxResults: c.maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(parsed.Results) > c.maxResults {
		parsed.Results = parsed.Results[:c.maxResults]
	}
	return parsed.Results, nil
}
