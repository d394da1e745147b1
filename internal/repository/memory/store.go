package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/igreja/tesouraria/internal/repository"
)

// Store is an in-process DocumentStore. It backs the offline mode and the
// test suites, and can be told to fail specific operations.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]bson.Raw
	finds       map[string]int

	failOrdered map[string]error
	failFind    map[string]error
	failWrite   map[string]error

	newID func() string
}

var _ repository.DocumentStore = (*Store)(nil)

// NewStore returns an empty store that assigns uuid ids.
func NewStore() *Store {
	return &Store{
		collections: make(map[string][]bson.Raw),
		finds:       make(map[string]int),
		failOrdered: make(map[string]error),
		failFind:    make(map[string]error),
		failWrite:   make(map[string]error),
		newID:       uuid.NewString,
	}
}

// FailOrderedQueries makes sorted finds on collection fail with err, the
// way a backend without a composite index would. A nil err clears it.
func (s *Store) FailOrderedQueries(collection string, err error) {
	s.setFailure(s.failOrdered, collection, err)
}

// FailQueries makes every find on collection fail with err.
func (s *Store) FailQueries(collection string, err error) {
	s.setFailure(s.failFind, collection, err)
}

// FailWrites makes inserts, updates, deletes and puts on collection fail.
func (s *Store) FailWrites(collection string, err error) {
	s.setFailure(s.failWrite, collection, err)
}

// FindCalls reports how many finds were issued against collection.
func (s *Store) FindCalls(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finds[collection]
}

// Len reports how many documents collection holds.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) setFailure(target map[string]error, collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(target, collection)
		return
	}
	target[collection] = err
}

// Find implements repository.DocumentStore.
func (s *Store) Find(ctx context.Context, collection string, filter repository.Filter, order *repository.Sort) ([]bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.finds[collection]++
	if err := s.failFind[collection]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.failOrdered[collection]; err != nil && order != nil {
		s.mu.Unlock()
		return nil, err
	}
	docs := append([]bson.Raw(nil), s.collections[collection]...)
	s.mu.Unlock()

	out := make([]bson.Raw, 0, len(docs))
	for _, doc := range docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, clone(doc))
		}
	}

	if order != nil {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareField(out[i], out[j], order.Field)
			if order.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	return out, nil
}

// Insert implements repository.DocumentStore.
func (s *Store) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := s.newID()
	raw, err := withID(doc, id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[collection]; err != nil {
		return "", err
	}
	s.collections[collection] = append(s.collections[collection], raw)
	return id, nil
}

// UpdateFields implements repository.DocumentStore.
func (s *Store) UpdateFields(ctx context.Context, collection, id string, scope repository.Filter, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[collection]; err != nil {
		return err
	}

	idx, err := s.indexOf(collection, id, scope)
	if err != nil {
		return err
	}

	var current bson.D
	if err := bson.Unmarshal(s.collections[collection][idx], &current); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}

	for key, value := range fields {
		replaced := false
		for i := range current {
			if current[i].Key == key {
				current[i].Value = value
				replaced = true
				break
			}
		}
		if !replaced {
			current = append(current, bson.E{Key: key, Value: value})
		}
	}

	raw, err := bson.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	s.collections[collection][idx] = raw
	return nil
}

// Delete implements repository.DocumentStore.
func (s *Store) Delete(ctx context.Context, collection, id string, scope repository.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[collection]; err != nil {
		return err
	}

	idx, err := s.indexOf(collection, id, scope)
	if err != nil {
		return err
	}

	docs := s.collections[collection]
	s.collections[collection] = append(docs[:idx:idx], docs[idx+1:]...)
	return nil
}

// Get implements repository.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, key string) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failFind[collection]; err != nil {
		return nil, err
	}

	idx, err := s.indexOf(collection, key, nil)
	if err != nil {
		return nil, err
	}
	return clone(s.collections[collection][idx]), nil
}

// Put implements repository.DocumentStore.
func (s *Store) Put(ctx context.Context, collection, key string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := withID(doc, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[collection]; err != nil {
		return err
	}

	if idx, err := s.indexOf(collection, key, nil); err == nil {
		s.collections[collection][idx] = raw
		return nil
	}
	s.collections[collection] = append(s.collections[collection], raw)
	return nil
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(collection, id string, scope repository.Filter) (int, error) {
	for i, doc := range s.collections[collection] {
		value, err := doc.LookupErr(repository.FieldID)
		if err != nil {
			continue
		}
		if docID, ok := value.StringValueOK(); !ok || docID != id {
			continue
		}
		ok, err := matches(doc, scope)
		if err != nil {
			return -1, err
		}
		if !ok {
			break
		}
		return i, nil
	}
	return -1, fmt.Errorf("%s/%s: %w", collection, id, repository.ErrNotFound)
}

func withID(doc any, id string) (bson.Raw, error) {
	encoded, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	var fields bson.D
	if err := bson.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	out := bson.D{{Key: repository.FieldID, Value: id}}
	for _, field := range fields {
		if field.Key != repository.FieldID {
			out = append(out, field)
		}
	}

	raw, err := bson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

func matches(doc bson.Raw, filter repository.Filter) (bool, error) {
	for key, want := range filter {
		got, err := doc.LookupErr(key)
		if err != nil {
			return false, nil
		}
		wantType, wantData, err := bson.MarshalValue(want)
		if err != nil {
			return false, fmt.Errorf("encode filter %s: %w", key, err)
		}
		if got.Type != wantType || !bytes.Equal(got.Value, wantData) {
			return false, nil
		}
	}
	return true, nil
}

// compareField orders documents on one field; missing values sort first.
func compareField(a, b bson.Raw, field string) int {
	av, aErr := a.LookupErr(field)
	bv, bErr := b.LookupErr(field)
	switch {
	case aErr != nil && bErr != nil:
		return 0
	case aErr != nil:
		return -1
	case bErr != nil:
		return 1
	}

	if av.Type == bsontype.DateTime && bv.Type == bsontype.DateTime {
		return cmp(av.DateTime(), bv.DateTime())
	}
	if as, ok := av.StringValueOK(); ok {
		if bs, ok := bv.StringValueOK(); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			}
			return 0
		}
	}
	if af, ok := numeric(av); ok {
		if bf, ok := numeric(bv); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
		}
	}
	return 0
}

func numeric(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Double:
		return v.Double(), true
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	}
	return 0, false
}

func cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func clone(doc bson.Raw) bson.Raw {
	out := make(bson.Raw, len(doc))
	copy(out, doc)
	return out
}
