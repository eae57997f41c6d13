package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/basket/models"
)

// apiClient talks to a running basket server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	pollEvery time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 3 * time.Minute},
		pollEvery: 2 * time.Second,
	}
}

// Search calls GET /api/v1/search.
func (c *apiClient) Search(ctx context.Context, query string) (*models.SearchReport, error) {
	var report models.SearchReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/search?q="+url.QueryEscape(query), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Sources calls GET /api/v1/sources.
func (c *apiClient) Sources(ctx context.Context) ([]models.SourceInfo, error) {
	var out []models.SourceInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/sources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch submits queries and polls the job until it leaves "processing".
func (c *apiClient) Batch(ctx context.Context, queries []string) (*models.BatchStatusResponse, error) {
	var created models.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/batch/search", models.BatchRequest{Queries: queries}, &created); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.BatchStatusResponse
			if err := c.do(ctx, http.MethodGet, "/api/v1/batch/"+created.ID, nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.BatchProcessing {
				return &status, nil
			}
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr models.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Details != nil {
			return fmt.Errorf("[%s] %s", apiErr.Details.Code, apiErr.Details.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
