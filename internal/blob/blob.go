// Package blob stores uploaded images. Records reference objects by their
// generated file name only.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// ErrNotFound is returned by Get for unknown object names.
var ErrNotFound = errors.New("blob: not found")

type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Get returns the object content and its content type.
	Get(ctx context.Context, name string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, name string) error
}

// NewObjectName generates a unique file name preserving the upload's
// extension, e.g. "1717680000000-483920174.jpg".
func NewObjectName(originalName string) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	suffix := binary.BigEndian.Uint32(buf[:]) % 1_000_000_000
	return fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), suffix, filepath.Ext(originalName))
}
