// Package snapshot encodes the versioned JSON documents the storefront keeps
// in durable storage: {"version":1,"items":[...]}. A bare JSON array is the
// pre-versioning layout and decodes as version 0.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const Version = 1

var (
	ErrMalformed      = errors.New("snapshot: malformed document")
	ErrUnknownVersion = errors.New("snapshot: unknown schema version")
)

type envelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

func Encode[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(envelope[T]{Version: Version, Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode returns the items and the schema version they were stored under.
func Decode[T any](data []byte) ([]T, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, 0, ErrMalformed
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return items, 0, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version != Version {
		return nil, env.Version, fmt.Errorf("%w: %d", ErrUnknownVersion, env.Version)
	}
	return env.Items, env.Version, nil
}
