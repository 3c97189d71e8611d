// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the durable store helpers

package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordAndVectorIDs_DeterministicAndDistinct(t *testing.T) {
	hash := "abc123"

	assert.Equal(t, recordID(hash), recordID(hash))
	assert.Equal(t, vectorID(hash), vectorID(hash))
	assert.NotEqual(t, recordID(hash), vectorID(hash))
	assert.NotEqual(t, recordID(hash), recordID("abc124"))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(fmt.Errorf("id 'x' already exists")))
	assert.True(t, isAlreadyExists(fmt.Errorf("status code: 422, error: conflict")))
	assert.False(t, isAlreadyExists(fmt.Errorf("connection refused")))
}

func TestFoldRating_StartsFromFirstRating(t *testing.T) {
	average, count := foldRating(nil, 0, 4.0)
	assert.Equal(t, 4.0, average)
	assert.Equal(t, 1, count)
}

func TestFoldRating_RunningAverage(t *testing.T) {
	average, count := foldRating(nil, 0, 4.0)
	average, count = foldRating(&average, count, 5.0)

	assert.Equal(t, 4.5, average)
	assert.Equal(t, 2, count)

	average, count = foldRating(&average, count, 1.0)
	assert.InDelta(t, 10.0/3.0, average, 1e-9)
	assert.Equal(t, 3, count)
}
