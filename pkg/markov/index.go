package markov

import "slices"

// Index is a learned gram model: a mapping from key grams to every successor
// gram observed after them, with duplicates kept. Keys are remembered in
// first-insertion order so iteration and persistence are deterministic.
//
// An Index is not safe for concurrent mutation. Once published through a
// Chain it is treated as read-only and may be shared by any number of readers.
type Index struct {
	order int
	grams map[string][]string
	keys  []string
	total int
}

// NewIndex returns an empty index for grams of the given order.
func NewIndex(order int) (*Index, error) {
	if order < 1 {
		return nil, ErrInvalidOrder
	}
	return &Index{
		order: order,
		grams: make(map[string][]string),
	}, nil
}

// Order returns the number of tokens per gram.
func (ix *Index) Order() int {
	return ix.order
}

// Insert appends successor to the list for key, creating the list if absent.
func (ix *Index) Insert(key, successor Gram) {
	ix.insertKey(key.Key(), successor.Key())
}

func (ix *Index) insertKey(key, successor string) {
	list, ok := ix.grams[key]
	if !ok {
		ix.keys = append(ix.keys, key)
	}
	ix.grams[key] = append(list, successor)
	ix.total++
}

// Lookup returns the successor keys recorded for key. The returned slice is
// owned by the index and must not be modified.
func (ix *Index) Lookup(key Gram) ([]string, bool) {
	return ix.LookupKey(key.Key())
}

// LookupKey is Lookup for a canonical key string.
func (ix *Index) LookupKey(key string) ([]string, bool) {
	list, ok := ix.grams[key]
	return list, ok
}

// Contains reports whether key has been recorded as a key gram.
func (ix *Index) Contains(key string) bool {
	_, ok := ix.grams[key]
	return ok
}

// Keys returns a copy of every key in first-insertion order.
func (ix *Index) Keys() []string {
	return slices.Clone(ix.keys)
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// Transitions returns the total number of recorded (key, successor) pairs.
func (ix *Index) Transitions() int {
	return ix.total
}

// Range calls fn for every key in first-insertion order until fn returns false.
func (ix *Index) Range(fn func(key string, successors []string) bool) {
	for _, key := range ix.keys {
		if !fn(key, ix.grams[key]) {
			return
		}
	}
}

// Equal reports whether both indices have the same order, the same keys and
// identical successor lists in the same order. Key insertion order is ignored.
func (ix *Index) Equal(other *Index) bool {
	if ix == nil || other == nil {
		return ix == other
	}
	if ix.order != other.order || len(ix.grams) != len(other.grams) {
		return false
	}
	for key, list := range ix.grams {
		otherList, ok := other.grams[key]
		if !ok || !slices.Equal(list, otherList) {
			return false
		}
	}
	return true
}
