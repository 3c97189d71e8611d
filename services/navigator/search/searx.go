// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("navigator.search")

// searxResponse mirrors the JSON shape of a SearxNG /search response.
type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearxClient queries a SearxNG-compatible metasearch endpoint.
//
// # Description
//
// Issues GET /search?q=...&format=json against SEARCH_SERVICE_URL. Outbound
// calls pass through a shared rate limiter so concurrent request fan-out
// cannot exceed the provider's limits.
//
// # Thread Safety
//
// Safe for concurrent use; the limiter and http.Client handle their own
// synchronization.
type SearxClient struct {
	httpClient HTTPClient
	baseURL    string
	limiter    *rate.Limiter
}

// NewSearxClient creates a search client from SEARCH_SERVICE_URL.
//
// # Outputs
//
//   - *SearxClient: Ready to use client.
//   - error: Non-nil if SEARCH_SERVICE_URL is not set.
func NewSearxClient() (*SearxClient, error) {
	baseURL := os.Getenv("SEARCH_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("SEARCH_SERVICE_URL environment variable not set")
	}
	slog.Info("Initializing search client", "base_url", baseURL)
	return &SearxClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		// 5 req/s with small bursts keeps us inside typical self-hosted
		// SearxNG limits even with three queries per request in flight.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// NewSearxClientWithURL creates a search client against an explicit base
// URL with production defaults.
func NewSearxClientWithURL(baseURL string) *SearxClient {
	return &SearxClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}
}

// NewSearxClientWithHTTP is the injection constructor used by tests.
func NewSearxClientWithHTTP(baseURL string, httpClient HTTPClient) *SearxClient {
	return &SearxClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

// Search implements the Client interface.
func (s *SearxClient) Search(ctx context.Context, query string, limit int) ([]datatypes.WebSearchHit, error) {
	ctx, span := tracer.Start(ctx, "SearxClient.Search")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", query))

	if err := s.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search rate limit wait: %w", err)
	}

	searchURL := fmt.Sprintf("%s/search?q=%s&format=json", s.baseURL, url.QueryEscape(query))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("Web search call failed", "query", query, "error", err)
		return nil, fmt.Errorf("search provider call failed: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("search provider returned status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed searxResponse
	if err := json.Unmarshal(respBodyBytes, &parsed); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	hits := make([]datatypes.WebSearchHit, 0, limit)
	for _, r := range parsed.Results {
		hits = append(hits, datatypes.WebSearchHit{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
		if len(hits) >= limit {
			break
		}
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	slog.Debug("Web search completed", "query", query, "hits", len(hits))
	return hits, nil
}

// Compile-time interface compliance.
var _ Client = (*SearxClient)(nil)
