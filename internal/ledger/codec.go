package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Key joins parts with "/".
func Key(parts ...string) string { return strings.Join(parts, "/") }

// EpochKey renders an epoch zero-padded so keys sort numerically.
func EpochKey(epoch uint64) string { return fmt.Sprintf("%020d", epoch) }

// ParseEpochKey is the inverse of EpochKey.
func ParseEpochKey(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

// AddrKey renders an address in lowercase hex.
func AddrKey(a domain.Address) string { return strings.ToLower(a.Hex()) }

// Load decodes the record at key into v. It returns domain.ErrNotFound when
// the key is absent.
func Load(ctx context.Context, kv domain.KeyValue, key string, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := sonnet.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("ledger: decode %s: %w", key, err)
	}
	return nil
}

// LoadOr is Load that leaves v untouched and reports false for a missing
// key.
func LoadOr(ctx context.Context, kv domain.KeyValue, key string, v any) (bool, error) {
	err := Load(ctx, kv, key, v)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Save encodes v and writes it at key.
func Save(ctx context.Context, kv domain.KeyValue, key string, v any) error {
	raw, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}
