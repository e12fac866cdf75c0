/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage reads from object stores holding model output.
package storage

import (
	"context"
	"io"
)

// Object is a listed key and its size in bytes.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore abstracts the read-only object operations the downloaders need.
type ObjectStore interface {
	// List returns every object under prefix, descending into nested prefixes.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open streams an object's body. Callers close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
