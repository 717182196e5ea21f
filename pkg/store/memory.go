package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and ephemeral sessions.
// Entities are deep-copied on the way in and out so callers cannot
// mutate stored state through shared maps.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]any)}
}

func (m *Memory) Get(ctx context.Context, resource, id string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[entityKey(resource, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntity(e), nil
}

func (m *Memory) GetMany(ctx context.Context, resource string, ids []string) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		if e, ok := m.data[entityKey(resource, id)]; ok {
			out[i] = copyEntity(e)
		}
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, resource string, opts ListOptions) ([]map[string]any, error) {
	m.mu.RLock()
	prefix := resourcePrefix(resource)
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyEntity(m.data[k]))
	}
	m.mu.RUnlock()
	return filterSortPage(out, opts), nil
}

func (m *Memory) Put(ctx context.Context, resource, id string, entity map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entityKey(resource, id)] = copyEntity(entity)
	return nil
}

func (m *Memory) Delete(ctx context.Context, resource, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityKey(resource, id)
	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

func copyEntity(e map[string]any) map[string]any {
	if e == nil {
		return nil
	}
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyEntity(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
