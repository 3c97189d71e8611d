// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Embedder defines the standard interface for any embedding backend.
//
// Implementations must be safe for concurrent use; a single Embedder is
// constructed at process start and shared across requests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelVersion identifies the embedding model so stored vectors can be
	// invalidated when the model changes.
	ModelVersion() string
}
