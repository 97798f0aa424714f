package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"moodlog-go/internal/moodlog"
)

// MemoryStore is an in-memory implementation of the DocumentStore
// interface. It backs tests and ephemeral runs, and is safe for concurrent
// use. Fault injection (Fail, EmitError) lets tests exercise the error
// paths the interface promises.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]any // path -> fields
	failures map[string]error          // path prefix -> injected error
	hub      *hub
}

var _ moodlog.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]any),
		failures: make(map[string]error),
		hub:      newHub(),
	}
}

// Fail makes every operation touching a path with the given prefix return
// err. Pass a previously registered prefix with a nil err to clear it.
func (m *MemoryStore) Fail(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, prefix)
		return
	}
	m.failures[prefix] = err
}

// EmitError pushes a transport-error snapshot to every subscription on the
// given collection, without touching stored data.
func (m *MemoryStore) EmitError(collection string, err error) {
	for _, s := range m.hub.broadcast(collection) {
		s.deliver(moodlog.QuerySnapshot{Err: err})
	}
}

func (m *MemoryStore) failureFor(path string) error {
	for prefix, err := range m.failures {
		if strings.HasPrefix(path, prefix) {
			return err
		}
	}
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// collectionOf returns the collection a path belongs to (the path minus its
// last segment).
func collectionOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

func keyOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (m *MemoryStore) Get(_ context.Context, path string) (*moodlog.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failureFor(path); err != nil {
		return nil, err
	}
	data, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	return &moodlog.Document{Path: path, Data: copyData(data)}, nil
}

func (m *MemoryStore) Set(_ context.Context, path string, data map[string]any, merge bool) error {
	m.mu.Lock()
	if err := m.failureFor(path); err != nil {
		m.mu.Unlock()
		return err
	}
	m.setLocked(path, data, merge)
	m.mu.Unlock()

	m.notifyChanged(path)
	return nil
}

func (m *MemoryStore) setLocked(path string, data map[string]any, merge bool) {
	if merge {
		if existing, ok := m.docs[path]; ok {
			merged := copyData(existing)
			for k, v := range data {
				merged[k] = v
			}
			m.docs[path] = merged
			return
		}
	}
	m.docs[path] = copyData(data)
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	if err := m.failureFor(path); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.docs, path)
	m.mu.Unlock()

	m.notifyChanged(path)
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]moodlog.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failureFor(collection); err != nil {
		return nil, err
	}
	return m.listLocked(collection, "", ""), nil
}

// listLocked returns the documents in collection with keys in
// [startKey, endKey] (empty bounds mean unbounded), sorted by key.
func (m *MemoryStore) listLocked(collection, startKey, endKey string) []moodlog.Document {
	var docs []moodlog.Document
	for path, data := range m.docs {
		if collectionOf(path) != collection {
			continue
		}
		key := keyOf(path)
		if startKey != "" && key < startKey {
			continue
		}
		if endKey != "" && key > endKey {
			continue
		}
		docs = append(docs, moodlog.Document{Path: path, Data: copyData(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

func (m *MemoryStore) QueryCreatedRange(_ context.Context, collection string, start, end time.Time) ([]moodlog.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failureFor(collection); err != nil {
		return nil, err
	}

	var docs []moodlog.Document
	for _, doc := range m.listLocked(collection, "", "") {
		created, ok := createdAtOf(doc.Data)
		if !ok {
			continue
		}
		if created.Before(start) || !created.Before(end) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// createdAtOf extracts the createdAt field, tolerating both time.Time and
// RFC 3339 string representations.
func createdAtOf(data map[string]any) (time.Time, bool) {
	switch v := data["createdAt"].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func (m *MemoryStore) SubscribeRange(_ context.Context, collection, startKey, endKey string) (moodlog.Subscription, error) {
	m.mu.Lock()
	if err := m.failureFor(collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	initial := moodlog.QuerySnapshot{Docs: m.listLocked(collection, startKey, endKey)}
	m.mu.Unlock()

	return m.hub.subscribe(collection, startKey, endKey, initial), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection string) (moodlog.Subscription, error) {
	return m.SubscribeRange(ctx, collection, "", "")
}

func (m *MemoryStore) RunTransaction(_ context.Context, fn func(tx moodlog.Txn) error) error {
	m.mu.Lock()

	tx := &memoryTxn{store: m}
	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}
	if tx.err != nil {
		m.mu.Unlock()
		return tx.err
	}

	// Commit: apply buffered writes, then notify outside the lock.
	var changed []string
	for _, w := range tx.writes {
		if w.delete {
			delete(m.docs, w.path)
		} else {
			m.setLocked(w.path, w.data, w.merge)
		}
		changed = append(changed, w.path)
	}
	m.mu.Unlock()

	for _, path := range changed {
		m.notifyChanged(path)
	}
	return nil
}

// notifyChanged recomputes and delivers fresh snapshots for every
// subscription the change affects.
func (m *MemoryStore) notifyChanged(path string) {
	collection := collectionOf(path)
	for _, s := range m.hub.matching(collection, keyOf(path)) {
		m.mu.Lock()
		snap := moodlog.QuerySnapshot{Docs: m.listLocked(collection, s.startKey, s.endKey)}
		m.mu.Unlock()
		s.deliver(snap)
	}
}

// memoryTxn buffers writes while the store lock is held by RunTransaction.
type memoryTxn struct {
	store  *MemoryStore
	writes []txnWrite
	err    error
}

type txnWrite struct {
	path   string
	data   map[string]any
	merge  bool
	delete bool
}

func (t *memoryTxn) Get(path string) (*moodlog.Document, error) {
	if err := t.store.failureFor(path); err != nil {
		return nil, err
	}
	// Reads observe buffered writes from this transaction.
	for i := len(t.writes) - 1; i >= 0; i-- {
		if t.writes[i].path != path {
			continue
		}
		if t.writes[i].delete {
			return nil, nil
		}
		return &moodlog.Document{Path: path, Data: copyData(t.writes[i].data)}, nil
	}
	data, ok := t.store.docs[path]
	if !ok {
		return nil, nil
	}
	return &moodlog.Document{Path: path, Data: copyData(data)}, nil
}

func (t *memoryTxn) Set(path string, data map[string]any, merge bool) {
	if err := t.store.failureFor(path); err != nil && t.err == nil {
		t.err = fmt.Errorf("transactional set %s: %w", path, err)
		return
	}
	t.writes = append(t.writes, txnWrite{path: path, data: copyData(data), merge: merge})
}

func (t *memoryTxn) Delete(path string) {
	if err := t.store.failureFor(path); err != nil && t.err == nil {
		t.err = fmt.Errorf("transactional delete %s: %w", path, err)
		return
	}
	t.writes = append(t.writes, txnWrite{path: path, delete: true})
}
