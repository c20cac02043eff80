// Package determinism provides primitives for deterministic ordering and
// content hashing.
package determinism

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
)

// OrderedMap is a map that iterates in first-insertion order.
// Not safe for concurrent use.
type OrderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// NewOrderedMap creates an empty OrderedMap
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		values: make(map[K]V),
	}
}

// Set adds or replaces a value. Replacing keeps the original position.
func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Update applies fn to the current value (zero if absent) and stores the result.
func (m *OrderedMap[K, V]) Update(key K, fn func(V) V) {
	m.Set(key, fn(m.values[key]))
}

// Get retrieves a value by key
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	val, ok := m.values[key]
	return val, ok
}

// Keys returns all keys in insertion order
func (m *OrderedMap[K, V]) Keys() []K {
	result := make([]K, len(m.keys))
	copy(result, m.keys)
	return result
}

// Len returns the number of entries
func (m *OrderedMap[K, V]) Len() int {
	return len(m.keys)
}

// ContentHash is a SHA-256 hash for content integrity
type ContentHash [32]byte

// HashFile hashes a file's content. ok is false when the file cannot be read.
func HashFile(path string) (hash ContentHash, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return ContentHash{}, false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ContentHash{}, false
	}
	copy(hash[:], h.Sum(nil))
	return hash, true
}

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// SortedKeys returns the keys of a string-keyed map in ascending order
func SortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
