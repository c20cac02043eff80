package pricing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bonita/core/determinism"
	"bonita/core/types"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

// Cache is a soil code -> price table read from the flat cache file.
// It is read-only once loaded; a refresh replaces the file and a new Cache is
// loaded from it.
type Cache struct {
	prices  map[types.SoilCode]decimal.Decimal
	modTime time.Time
}

// NewCache builds a cache from already-normalized codes.
func NewCache(prices map[types.SoilCode]decimal.Decimal) *Cache {
	c := &Cache{prices: make(map[types.SoilCode]decimal.Decimal, len(prices))}
	for code, price := range prices {
		c.prices[code] = price
	}
	return c
}

// ReadCache reads and validates the cache file. Keys are normalized to the
// canonical five-digit form; entries with invalid codes or negative prices are
// dropped.
func ReadCache(path string) (*Cache, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeCache, "stat cache file", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeCache, "read cache file", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.TypeCache, "cache file is not a code -> price object", err)
	}
	if raw == nil {
		return nil, errors.New(errors.TypeCache, "cache file is not a code -> price object")
	}

	c := NewCache(nil)
	c.modTime = info.ModTime()
	// Sorted so that "100" vs "00100" collisions resolve the same way every run:
	// the canonical spelling wins.
	for _, key := range determinism.SortedKeys(raw) {
		code, err := types.NormalizeSoilCode(key)
		if err != nil {
			logging.Debug("dropping cache entry", zap.String("key", key), zap.Error(err))
			continue
		}
		price, err := decodePrice(raw[key])
		if err != nil {
			logging.Debug("dropping cache entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if price.IsNegative() {
			logging.Debug("dropping negative cache price", zap.String("key", key))
			continue
		}
		if _, exists := c.prices[code]; exists && string(code) != key {
			continue
		}
		c.prices[code] = price
	}
	return c, nil
}

// decodePrice reads a JSON number or numeric string. null is rejected.
func decodePrice(v json.RawMessage) (decimal.Decimal, error) {
	if string(v) == "null" {
		return decimal.Decimal{}, errors.New(errors.TypeCache, "null price")
	}
	var price decimal.Decimal
	if err := json.Unmarshal(v, &price); err != nil {
		return decimal.Decimal{}, err
	}
	return price, nil
}

// LoadCache returns the cache at path, or false when the file is missing or
// malformed. A bad file is never fatal; the caller carries on without a cache.
func LoadCache(path string) (*Cache, bool) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false
	}
	c, err := ReadCache(path)
	if err != nil {
		logging.Warn("price cache unusable, continuing without it", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	return c, true
}

// CacheAge returns how long ago the cache file was modified.
func CacheAge(path string, now time.Time) (time.Duration, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return now.Sub(info.ModTime()), true
}

// Lookup returns the cached price for code. A miss is not an error.
func (c *Cache) Lookup(code types.SoilCode) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Decimal{}, false
	}
	price, ok := c.prices[code]
	return price, ok
}

// Len returns the number of cached codes
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.prices)
}

// ModTime is the file modification time the cache was loaded from.
// The zero time means the cache was not loaded from a file.
func (c *Cache) ModTime() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.modTime
}

// Checksum returns the SHA-256 of the cache file, or "" when it is absent.
func Checksum(path string) string {
	h, ok := determinism.HashFile(path)
	if !ok {
		return ""
	}
	return h.Hex()
}

// SaveCache replaces the cache file with prices, written as an indented JSON
// object with numeric values, keys ascending. The write goes through a temp
// file in the same directory so readers never see a partial file.
func SaveCache(path string, prices map[types.SoilCode]decimal.Decimal) error {
	out := make(map[string]json.Number, len(prices))
	for code, price := range prices {
		out[string(code)] = json.Number(price.String())
	}
	// encoding/json writes map keys in sorted order.
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return errors.Wrap(errors.TypeCache, "encode cache", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.TypeCache, "create cache directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".bpej-*.json")
	if err != nil {
		return errors.Wrap(errors.TypeCache, "create temp cache file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Wrap(errors.TypeCache, "write cache", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.TypeCache, "close cache", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errors.Wrap(errors.TypeCache, "chmod cache", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.TypeCache, "replace cache file", err)
	}
	return nil
}
