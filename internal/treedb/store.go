// Package treedb is a thin adapter over a tree-structured document store.
// Records live at slash-joined paths; a path can hold a JSON leaf value,
// child paths, or both. The adapter exposes the capabilities the service
// layer needs: point reads and writes, merge updates, subtree removal,
// push-generated child keys, child enumeration, and atomic counters.
package treedb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no leaf value exists at the path.
var ErrNotFound = errors.New("treedb: not found")

type Store interface {
	// Get unmarshals the leaf value at path into out.
	Get(ctx context.Context, path string, out any) error
	// Set writes value as the leaf at path, replacing any previous value.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path, creating it if absent.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Remove deletes the leaf at path and its entire subtree. Removing a
	// path that does not exist is not an error.
	Remove(ctx context.Context, path string) error
	// Push stores value under a generated child key and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Children returns the immediate children of path as name -> leaf value.
	// Children that are pure branches (no leaf of their own) map to nil.
	Children(ctx context.Context, path string) (map[string]json.RawMessage, error)
	// ChildKeys returns the sorted names of the immediate children of path.
	ChildKeys(ctx context.Context, path string) ([]string, error)
	// Exists reports whether path holds a leaf value or any children.
	Exists(ctx context.Context, path string) (bool, error)
	// Touch registers path as a branch without writing a leaf value.
	Touch(ctx context.Context, path string) error
	// Incr atomically increments the integer counter at path and returns
	// the new value. A missing counter starts from zero.
	Incr(ctx context.Context, path string) (int64, error)
	// Seed raises the counter at path to at least value. Not atomic with
	// respect to Incr; intended for one-time startup seeding only.
	Seed(ctx context.Context, path string, value int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Join builds a store path from segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// NewKey generates an opaque child key. Push uses it internally; callers
// that need to embed the key inside the record itself can generate it up
// front and Set the full path in one write.
func NewKey() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// splitParent returns the parent path and final segment of path.
// The parent of a top-level path is "".
func splitParent(path string) (string, string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// ancestors yields every (parent, child-name) pair from the root down to
// path itself, used to register branch membership on writes.
func ancestors(path string) [][2]string {
	segments := strings.Split(path, "/")
	pairs := make([][2]string, 0, len(segments))
	parent := ""
	for i, segment := range segments {
		pairs = append(pairs, [2]string{parent, segment})
		if i == 0 {
			parent = segment
		} else {
			parent = parent + "/" + segment
		}
	}
	return pairs
}

func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return data, nil
}
