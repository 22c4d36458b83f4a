package db

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blacktop/go-receipt/internal/model"
)

// Memory is a database that stores purchases in memory. When Path is set the
// purchases are loaded from it on Connect and written back on Close.
type Memory struct {
	Path string

	mu        sync.RWMutex
	purchases map[string]model.Purchase
}

// NewInMemory creates a new in-memory database. path may be empty.
func NewInMemory(path string) (Database, error) {
	return &Memory{
		Path:      path,
		purchases: make(map[string]model.Purchase),
	}, nil
}

// Connect loads the snapshot at Path, if any.
func (m *Memory) Connect() error {
	if m.Path == "" {
		return nil
	}
	f, err := os.Open(m.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := gob.NewDecoder(f).Decode(&m.purchases); err != nil {
		return fmt.Errorf("failed to decode %s: %w", m.Path, err)
	}
	return nil
}

// SavePurchases upserts purchases under bundleID.
func (m *Memory) SavePurchases(bundleID string, purchases []model.Purchase) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range purchases {
		p.BundleID = bundleID
		p.CreatedAt, p.UpdatedAt = now, now
		if old, ok := m.purchases[p.TransactionID]; ok {
			p.CreatedAt = old.CreatedAt
		}
		m.purchases[p.TransactionID] = p
	}
	return nil
}

// GetPurchase returns the purchase with the given transaction id.
func (m *Memory) GetPurchase(transactionID string) (*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[transactionID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

// Ping always succeeds.
func (m *Memory) Ping() error {
	return nil
}

// Close writes the snapshot to Path, if set. The previous snapshot is only
// replaced once the new one is fully written.
func (m *Memory) Close() error {
	if m.Path == "" {
		return nil
	}
	f, err := os.CreateTemp(filepath.Dir(m.Path), "."+filepath.Base(m.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(f.Name())

	m.mu.RLock()
	err = gob.NewEncoder(f).Encode(m.purchases)
	m.mu.RUnlock()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(f.Name(), m.Path)
}
