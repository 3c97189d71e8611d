// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the web-search client

package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient returns a scripted response or error.
type mockHTTPClient struct {
	status  int
	body    string
	err     error
	lastURL string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastURL = req.URL.String()
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func TestSearch_ParsesResultsAndCapsAtLimit(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK, body: `{
		"results": [
			{"title": "A", "url": "https://a.example", "content": "first"},
			{"title": "B", "url": "https://b.example", "content": "second"},
			{"title": "C", "url": "https://c.example", "content": "third"}
		]
	}`}
	client := NewSearxClientWithHTTP("http://search.local", mock)

	hits, err := client.Search(context.Background(), "cardiology appointment", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "A", hits[0].Title)
	assert.Equal(t, "first", hits[0].Snippet)
	assert.Contains(t, mock.lastURL, "format=json")
	assert.Contains(t, mock.lastURL, "cardiology+appointment")
}

func TestSearch_NonOKStatusErrors(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusTooManyRequests, body: "slow down"}
	client := NewSearxClientWithHTTP("http://search.local", mock)

	_, err := client.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_TransportErrorWrapped(t *testing.T) {
	mock := &mockHTTPClient{err: fmt.Errorf("connection refused")}
	client := NewSearxClientWithHTTP("http://search.local", mock)

	_, err := client.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search provider call failed")
}

func TestSearch_MalformedJSONErrors(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK, body: "<html>not json</html>"}
	client := NewSearxClientWithHTTP("http://search.local", mock)

	_, err := client.Search(context.Background(), "q", 3)
	require.Error(t, err)
}

func TestNewSearxClient_RequiresEnv(t *testing.T) {
	t.Setenv("SEARCH_SERVICE_URL", "")
	_, err := NewSearxClient()
	assert.Error(t, err)
}
