// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search provides the web-search provider client used by the
// context gatherer.
package search

import (
	"context"
	"net/http"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
)

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client defines the contract for a web-search provider.
//
// Implementations must be safe for concurrent use; one client is constructed
// at process start and shared across requests.
type Client interface {
	// Search runs one query and returns up to limit hits. The caller bounds
	// the call with a context deadline; a timed-out or failed search is a
	// degradation signal, not a pipeline failure.
	Search(ctx context.Context, query string, limit int) ([]datatypes.WebSearchHit, error)
}
