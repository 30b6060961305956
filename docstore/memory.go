package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memEntry struct {
	seq  int64
	data map[string]any
}

// Memory is an in-process Store. It backs tests and the "memory" driver.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memEntry
	seq         int64
	broker      *Broker
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*memEntry),
		broker:      NewBroker(),
	}
}

func (m *Memory) Broker() *Broker { return m.broker }

func (m *Memory) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	e, ok := m.collections[collection][id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	data, err := Encode(e.data)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Data: data}, nil
}

func (m *Memory) Put(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	normalized, err := Encode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	coll := m.collection(collection)
	if e, ok := coll[id]; ok {
		if merge {
			for k, v := range normalized {
				e.data[k] = v
			}
		} else {
			e.data = normalized
		}
	} else {
		m.seq++
		coll[id] = &memEntry{seq: m.seq, data: normalized}
	}
	m.mu.Unlock()

	m.broker.Notify(collection)
	return nil
}

func (m *Memory) Create(_ context.Context, collection, id string, data map[string]any) error {
	normalized, err := Encode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	coll := m.collection(collection)
	if _, ok := coll[id]; ok {
		m.mu.Unlock()
		return ErrExists
	}
	m.seq++
	coll[id] = &memEntry{seq: m.seq, data: normalized}
	m.mu.Unlock()

	m.broker.Notify(collection)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	_, ok := m.collections[collection][id]
	if ok {
		delete(m.collections[collection], id)
	}
	m.mu.Unlock()

	if ok {
		m.broker.Notify(collection)
	}
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, where Filter) ([]Document, error) {
	type hit struct {
		seq int64
		doc Document
	}

	m.mu.RLock()
	var hits []hit
	for id, e := range m.collections[collection] {
		if !where.Match(e.data) {
			continue
		}
		data, err := Encode(e.data)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		hits = append(hits, hit{seq: e.seq, doc: Document{ID: id, Data: data}})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs, nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, where Filter, fn Listener) (Subscription, error) {
	changes, stop := m.broker.Listen(collection)
	query := func(ctx context.Context) ([]Document, error) {
		return m.Query(ctx, collection, where)
	}
	return Watch(ctx, query, changes, fn, stop), nil
}

func (m *Memory) NewID(string) string {
	return uuid.NewString()
}

func (m *Memory) collection(name string) map[string]*memEntry {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]*memEntry)
		m.collections[name] = coll
	}
	return coll
}
