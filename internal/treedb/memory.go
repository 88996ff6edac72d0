package treedb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and as a zero-dependency
// fallback backend.
type Memory struct {
	mu       sync.RWMutex
	leaves   map[string]json.RawMessage
	children map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		leaves:   make(map[string]json.RawMessage),
		children: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) register(path string) {
	for _, pair := range ancestors(path) {
		parent, name := pair[0], pair[1]
		set, ok := m.children[parent]
		if !ok {
			set = make(map[string]struct{})
			m.children[parent] = set
		}
		set[name] = struct{}{}
	}
}

func (m *Memory) Get(_ context.Context, path string, out any) error {
	m.mu.RLock()
	raw, ok := m.leaves[path]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *Memory) Set(_ context.Context, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[path] = raw
	m.register(path)
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := make(map[string]any)
	if raw, ok := m.leaves[path]; ok {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("update %s: existing value is not an object: %w", path, err)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	m.leaves[path] = raw
	m.register(path)
	return nil
}

func (m *Memory) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(path)
	parent, name := splitParent(path)
	if set, ok := m.children[parent]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(m.children, parent)
		}
	}
	return nil
}

func (m *Memory) removeLocked(path string) {
	delete(m.leaves, path)
	for name := range m.children[path] {
		m.removeLocked(path + "/" + name)
	}
	delete(m.children, path)
}

func (m *Memory) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewKey()
	if err := m.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Memory) Children(_ context.Context, path string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.children[path]))
	for name := range m.children[path] {
		if raw, ok := m.leaves[path+"/"+name]; ok {
			out[name] = raw
		} else {
			out[name] = nil
		}
	}
	return out, nil
}

func (m *Memory) ChildKeys(_ context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.children[path]))
	for name := range m.children[path] {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.leaves[path]; ok {
		return true, nil
	}
	return len(m.children[path]) > 0, nil
}

func (m *Memory) Touch(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(path)
	return nil
}

func (m *Memory) Incr(_ context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.counterLocked(path)
	next := current + 1
	m.leaves[path] = json.RawMessage(strconv.FormatInt(next, 10))
	m.register(path)
	return next, nil
}

func (m *Memory) Seed(_ context.Context, path string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterLocked(path) >= value {
		return nil
	}
	m.leaves[path] = json.RawMessage(strconv.FormatInt(value, 10))
	m.register(path)
	return nil
}

func (m *Memory) counterLocked(path string) int64 {
	raw, ok := m.leaves[path]
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
