package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process [Store]. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{resources: make(map[string]Resource)}
}

// Put stores data for url, replacing any previous entry.
func (m *Memory) Put(url, mimeType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[url] = Resource{URL: url, MIMEType: mimeType, Data: data}
}

// Get returns a copy of the stored resource.
func (m *Memory) Get(ctx context.Context, url string) (*Resource, error) {
	m.mu.RLock()
	r, ok := m.resources[url]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	r.Data = append([]byte(nil), r.Data...)
	return &r, nil
}

// Len returns the number of stored resources.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.resources)
}

// stashEntry is one resource in a JSON stash dump.
type stashEntry struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// LoadStash decodes a JSON object mapping URL to {"mimeType", "data"} and
// adds every entry to the store.
func (m *Memory) LoadStash(r io.Reader) error {
	var stash map[string]stashEntry
	if err := json.NewDecoder(r).Decode(&stash); err != nil {
		return fmt.Errorf("decode stash: %w", err)
	}
	for url, e := range stash {
		mt := e.MIMEType
		if mt == "" {
			mt = TypeByPath(url)
		}
		m.Put(url, mt, []byte(e.Data))
	}
	return nil
}

var _ Store = (*Memory)(nil)
