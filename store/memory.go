package store

import (
	"context"
	"sync"
)

// MemoryDriver is an in-memory Driver for tests.
type MemoryDriver struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{docs: make(map[string][]byte)}
}

func key(concern Concern, account string) string {
	return account + "/" + string(concern)
}

func (d *MemoryDriver) Load(_ context.Context, concern Concern, account string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.docs[key(concern, account)], nil
}

func (d *MemoryDriver) Save(_ context.Context, concern Concern, account string, doc []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, len(doc))
	copy(buf, doc)
	d.docs[key(concern, account)] = buf
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}

var _ Driver = (*MemoryDriver)(nil)
