// Package docstore is the document database the chat core is written
// against: schema-free documents grouped in collections, one-shot filtered
// queries and live subscriptions that redeliver the full matching set after
// every change.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

type Document struct {
	ID   string
	Data map[string]any
}

// Decode unmarshals the document data into v using its json tags.
func (d Document) Decode(v any) error {
	b, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Listener receives full snapshots. A non-nil error means the snapshot could
// not be produced; the subscription stays open and retries on the next change.
type Listener func(docs []Document, err error)

type Subscription interface {
	Cancel()
	Done() <-chan struct{}
}

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Put writes data under id. With merge set, keys absent from data keep
	// their stored values; otherwise the document is replaced.
	Put(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	// Create writes data only if id does not exist yet, returning ErrExists
	// otherwise.
	Create(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Query returns matching documents in insertion order.
	Query(ctx context.Context, collection string, where Filter) ([]Document, error)
	Subscribe(ctx context.Context, collection string, where Filter, fn Listener) (Subscription, error)
	NewID(collection string) string
}

// Encode turns a tagged struct (or map) into the normalized map form stored
// by every backend: nested structs become maps and numbers become float64.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeAll decodes every document with decode, skipping documents that
// fail, the way a snapshot listener drops rows it cannot map.
func DecodeAll[T any](docs []Document, decode func(Document) (T, error)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode(d)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
