package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ettle/strcase"
)

// ReferenceItem is one entry of an entity reference list.
type ReferenceItem struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ReferenceSource returns the reference list for an entity dimension.
type ReferenceSource interface {
	ReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error)
}

// ReferenceSourceFunc adapts a function to ReferenceSource.
type ReferenceSourceFunc func(ctx context.Context, dim Dimension) ([]ReferenceItem, error)

func (fn ReferenceSourceFunc) ReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error) {
	return fn(ctx, dim)
}

// StaticReferences serves fixed lists, mostly for tests and the CLI.
type StaticReferences map[Dimension][]ReferenceItem

func (s StaticReferences) ReferenceList(_ context.Context, dim Dimension) ([]ReferenceItem, error) {
	return s[dim], nil
}

// ReferencePass memoizes reference lists for one validation pass so each
// dimension is loaded at most once, however many metrics are sanitized.
type ReferencePass struct {
	source ReferenceSource
	mu     sync.Mutex
	lists  map[Dimension]*passEntry
}

type passEntry struct {
	once  sync.Once
	items []ReferenceItem
	ids   map[int64]struct{}
	err   error
}

// NewReferencePass wraps source in a pass-scoped memo.
func NewReferencePass(source ReferenceSource) *ReferencePass {
	return &ReferencePass{source: source, lists: make(map[Dimension]*passEntry)}
}

func asReferencePass(refs ReferenceSource) *ReferencePass {
	if pass, ok := refs.(*ReferencePass); ok && pass != nil {
		return pass
	}
	return NewReferencePass(refs)
}

// ReferenceList implements ReferenceSource.
func (p *ReferencePass) ReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error) {
	entry := p.load(ctx, dim)
	return entry.items, entry.err
}

func (p *ReferencePass) contains(ctx context.Context, dim Dimension, id int64) (bool, error) {
	entry := p.load(ctx, dim)
	if entry.err != nil {
		return false, entry.err
	}
	_, ok := entry.ids[id]
	return ok, nil
}

func (p *ReferencePass) load(ctx context.Context, dim Dimension) *passEntry {
	p.mu.Lock()
	entry, ok := p.lists[dim]
	if !ok {
		entry = &passEntry{}
		p.lists[dim] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		if p.source == nil {
			entry.err = ErrReferencesUnavailable
			return
		}
		items, err := p.source.ReferenceList(ctx, dim)
		if err != nil {
			entry.err = err
			return
		}
		entry.items = items
		entry.ids = make(map[int64]struct{}, len(items))
		for _, item := range items {
			entry.ids[item.ID] = struct{}{}
		}
	})
	return entry
}

// CachedReferenceSource consults cache before the backend.
type CachedReferenceSource struct {
	backend ReferenceBackend
	cache   ReferenceCache
}

// NewCachedReferenceSource wires a ReferenceBackend behind an optional cache.
func NewCachedReferenceSource(backend ReferenceBackend, cache ReferenceCache) *CachedReferenceSource {
	return &CachedReferenceSource{backend: backend, cache: cache}
}

// ReferenceList implements ReferenceSource.
func (s *CachedReferenceSource) ReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error) {
	if !dim.IsEntity() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDimension, dim)
	}
	if s.backend == nil {
		return nil, ErrReferencesUnavailable
	}
	load := func(ctx context.Context) ([]ReferenceItem, error) {
		return s.backend.FetchReferenceList(ctx, dim)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.GetOrLoad(ctx, referenceCacheKey(dim), load)
}

func referenceCacheKey(dim Dimension) string {
	return "references:" + string(dim)
}

// ParseReferenceItems decodes a reference list payload. Entries may be objects
// with id/name (or title/label), bare numbers, bare strings, or JSON-encoded
// strings; anything without a usable id gets its 1-based position and a
// synthesized name such as "Video 3".
func ParseReferenceItems(dim Dimension, raw []byte) ([]ReferenceItem, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Items []json.RawMessage `json:"items"`
			Data  []json.RawMessage `json:"data"`
		}
		if werr := json.Unmarshal(raw, &wrapped); werr != nil {
			return nil, fmt.Errorf("dashboard: decode reference list: %w", err)
		}
		entries = wrapped.Items
		if entries == nil {
			entries = wrapped.Data
		}
	}
	items := make([]ReferenceItem, 0, len(entries))
	for i, entry := range entries {
		items = append(items, parseReferenceEntry(dim, i+1, entry))
	}
	return items, nil
}

func parseReferenceEntry(dim Dimension, position int, raw json.RawMessage) ReferenceItem {
	item := ReferenceItem{ID: int64(position)}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		item.Name = syntheticReferenceName(dim, position)
		return item
	}
	if s, ok := value.(string); ok {
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			value = inner
		}
	}

	switch v := value.(type) {
	case map[string]any:
		if n, ok := numberField(v["id"]); ok {
			if id, ok := wholeNumber(n); ok && id > 0 {
				item.ID = id
			}
		}
		for _, key := range []string{"name", "title", "label"} {
			if name, ok := v[key].(string); ok && strings.TrimSpace(name) != "" {
				item.Name = name
				break
			}
		}
	case float64:
		if id, ok := wholeNumber(v); ok && id > 0 {
			item.ID = id
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			item.ID = id
		} else if strings.TrimSpace(v) != "" {
			item.Name = v
		}
	}
	if item.Name == "" {
		item.Name = syntheticReferenceName(dim, int(item.ID))
	}
	return item
}

func syntheticReferenceName(dim Dimension, n int) string {
	return fmt.Sprintf("%s %d", strcase.ToPascal(string(dim)), n)
}
