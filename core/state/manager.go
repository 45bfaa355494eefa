package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"stablevault/storage"
)

// Manager layers a journaled write overlay on top of a storage.Database.
// Writes stay in memory until Commit flushes them as one batch; Snapshot and
// RevertToSnapshot roll back writes made after a snapshot was taken.
type Manager struct {
	mu        sync.RWMutex
	db        storage.Database
	dirty     map[string][]byte
	deleted   map[string]bool
	journal   []journalEntry
	revisions []int
}

type journalEntry struct {
	key        string
	prev       []byte
	wasDirty   bool
	wasDeleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Snapshot returns an identifier for the current revision.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions = append(m.revisions, len(m.journal))
	return len(m.revisions) - 1
}

// RevertToSnapshot discards every write made since the snapshot id was
// taken. Unknown ids are ignored.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.revisions) {
		return
	}
	mark := m.revisions[id]
	for i := len(m.journal) - 1; i >= mark; i-- {
		entry := m.journal[i]
		if entry.wasDirty {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
		if entry.wasDeleted {
			m.deleted[entry.key] = true
		} else {
			delete(m.deleted, entry.key)
		}
	}
	m.journal = m.journal[:mark]
	m.revisions = m.revisions[:id]
}

// Commit flushes pending writes to the database in one batch and resets the
// journal.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 && len(m.deleted) == 0 {
		m.resetJournal()
		return nil
	}
	batch := storage.NewBatch()
	for key, value := range m.dirty {
		batch.Put([]byte(key), value)
	}
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state commit: %w", err)
	}
	m.dirty = make(map[string][]byte)
	m.deleted = make(map[string]bool)
	m.resetJournal()
	return nil
}

func (m *Manager) resetJournal() {
	m.journal = m.journal[:0]
	m.revisions = m.revisions[:0]
}

// Pending reports the number of keys waiting for Commit.
func (m *Manager) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty) + len(m.deleted)
}

func (m *Manager) record(key string) {
	prev, wasDirty := m.dirty[key]
	m.journal = append(m.journal, journalEntry{
		key:        key,
		prev:       prev,
		wasDirty:   wasDirty,
		wasDeleted: m.deleted[key],
	})
}

func (m *Manager) getRaw(key []byte) ([]byte, error) {
	k := string(key)
	if value, ok := m.dirty[k]; ok {
		return value, nil
	}
	if m.deleted[k] {
		return nil, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) putRaw(key, value []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = append([]byte(nil), value...)
	delete(m.deleted, k)
}

func (m *Manager) deleteRaw(key []byte) {
	k := string(key)
	m.record(k)
	delete(m.dirty, k)
	m.deleted[k] = true
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kvPut(key, value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kvGet(key, out)
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteRaw(kvKey(key))
	return nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.putRaw(kvKey(key), encoded)
	return nil
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.getRaw(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
