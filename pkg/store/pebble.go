package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/sylphx/lens/pkg/logger"
)

// Pebble persists entities in a Pebble database. Values are JSON
// objects; every write is synced.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the database at path.
func OpenPebble(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db}, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened.
func (p *Pebble) Ready() bool { return p != nil && p.db != nil }

func (p *Pebble) guard() error {
	if p == nil || p.db == nil {
		return fmt.Errorf("pebble not opened; call OpenPebble first")
	}
	return nil
}

func (p *Pebble) Get(ctx context.Context, resource, id string) (map[string]any, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	v, closer, err := p.db.Get([]byte(entityKey(resource, id)))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		logger.Error("get_entity_failed", "resource", resource, "id", id, "error", err)
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	var entity map[string]any
	if err := json.Unmarshal(v, &entity); err != nil {
		return nil, fmt.Errorf("invalid entity JSON for %s/%s: %w", resource, id, err)
	}
	return entity, nil
}

// GetMany fetches ids in order. Missing ids yield nil slots rather
// than failing the whole batch.
func (p *Pebble) GetMany(ctx context.Context, resource string, ids []string) ([]map[string]any, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		e, err := p.Get(ctx, resource, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (p *Pebble) List(ctx context.Context, resource string, opts ListOptions) ([]map[string]any, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	prefix := []byte(resourcePrefix(resource))
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []map[string]any
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		var entity map[string]any
		if err := json.Unmarshal(v, &entity); err != nil {
			logger.Error("list_invalid_entity_json", "key", string(iter.Key()), "error", err)
			return nil, fmt.Errorf("invalid entity JSON: %w", err)
		}
		out = append(out, entity)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return filterSortPage(out, opts), nil
}

func (p *Pebble) Put(ctx context.Context, resource, id string, entity map[string]any) error {
	if err := p.guard(); err != nil {
		return err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	key := entityKey(resource, id)
	if err := p.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("put_entity_failed", "resource", resource, "id", id, "error", err)
		return err
	}
	logger.Debug("entity_saved", "resource", resource, "id", id, "len", len(data))
	return nil
}

func (p *Pebble) Delete(ctx context.Context, resource, id string) error {
	if err := p.guard(); err != nil {
		return err
	}
	key := []byte(entityKey(resource, id))
	if _, closer, err := p.db.Get(key); err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return err
	} else if closer != nil {
		closer.Close()
	}
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		logger.Error("delete_entity_failed", "resource", resource, "id", id, "error", err)
		return err
	}
	logger.Debug("entity_deleted", "resource", resource, "id", id)
	return nil
}
