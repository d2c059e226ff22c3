package client

import (
	"context"
	"time"

	"github.com/overcast-systems/flywheel/store"
)

// Key-value operations. Every operation follows the same dispatch: when not
// connected it goes straight to the fallback store; when connected it goes
// to the remote store, and a remote failure degrades the client and retries
// the same operation on the fallback store. Remote errors never reach the
// caller through this surface.
//
// READONLY errors (a replica mid-failover) get one immediate remote retry
// before the degrade path runs.

// decodeIf applies the read-side serialization contract to a store result.
func decodeIf(raw string, ok bool) any {
	if !ok {
		return nil
	}
	return store.Decode(raw)
}

// Get returns the decoded value at key, or nil when the key is absent or
// expired.
func (c *Client) Get(ctx context.Context, key string) (any, error) {
	if c.Mode() != ModeConnected {
		raw, ok, _ := c.mem.Get(ctx, key)
		return decodeIf(raw, ok), nil
	}
	raw, ok, err := c.remote.Get(ctx, key)
	if err != nil && isReadOnlyErr(err) {
		raw, ok, err = c.remote.Get(ctx, key)
	}
	if err != nil {
		c.degrade("get", err)
		raw, ok, _ = c.mem.Get(ctx, key)
	}
	return decodeIf(raw, ok), nil
}

// Set stores value at key. Strings are stored as-is, everything else is
// JSON-encoded. A ttl of zero or less means no expiry.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := store.Encode(value)
	if err != nil {
		return err
	}
	if c.Mode() != ModeConnected {
		return c.mem.Set(ctx, key, raw, ttl)
	}
	err = c.remote.Set(ctx, key, raw, ttl)
	if err != nil && isReadOnlyErr(err) {
		err = c.remote.Set(ctx, key, raw, ttl)
	}
	if err != nil {
		c.degrade("set", err)
		return c.mem.Set(ctx, key, raw, ttl)
	}
	return nil
}

// Del removes key. Deleting an absent key is not an error.
func (c *Client) Del(ctx context.Context, key string) error {
	if c.Mode() != ModeConnected {
		return c.mem.Del(ctx, key)
	}
	err := c.remote.Del(ctx, key)
	if err != nil && isReadOnlyErr(err) {
		err = c.remote.Del(ctx, key)
	}
	if err != nil {
		c.degrade("del", err)
		return c.mem.Del(ctx, key)
	}
	return nil
}

// Exists reports whether key is present and unexpired.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if c.Mode() != ModeConnected {
		ok, _ := c.mem.Exists(ctx, key)
		return ok, nil
	}
	ok, err := c.remote.Exists(ctx, key)
	if err != nil && isReadOnlyErr(err) {
		ok, err = c.remote.Exists(ctx, key)
	}
	if err != nil {
		c.degrade("exists", err)
		ok, _ = c.mem.Exists(ctx, key)
	}
	return ok, nil
}

// Expire sets a fresh ttl on an existing key, reporting whether the key was
// present. A ttl of zero or less deletes the key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c.Mode() != ModeConnected {
		ok, _ := c.mem.Expire(ctx, key, ttl)
		return ok, nil
	}
	ok, err := c.remote.Expire(ctx, key, ttl)
	if err != nil && isReadOnlyErr(err) {
		ok, err = c.remote.Expire(ctx, key, ttl)
	}
	if err != nil {
		c.degrade("expire", err)
		ok, _ = c.mem.Expire(ctx, key, ttl)
	}
	return ok, nil
}

// Incr increments the integer at key by one and returns the new value. An
// absent key counts up from zero.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c.Mode() != ModeConnected {
		n, _ := c.mem.Incr(ctx, key)
		return n, nil
	}
	n, err := c.remote.Incr(ctx, key)
	if err != nil && isReadOnlyErr(err) {
		n, err = c.remote.Incr(ctx, key)
	}
	if err != nil {
		c.degrade("incr", err)
		n, _ = c.mem.Incr(ctx, key)
	}
	return n, nil
}

// HSet stores value under field in the hash at key.
func (c *Client) HSet(ctx context.Context, key, field string, value any) error {
	raw, err := store.Encode(value)
	if err != nil {
		return err
	}
	if c.Mode() != ModeConnected {
		return c.mem.HSet(ctx, key, field, raw)
	}
	err = c.remote.HSet(ctx, key, field, raw)
	if err != nil && isReadOnlyErr(err) {
		err = c.remote.HSet(ctx, key, field, raw)
	}
	if err != nil {
		c.degrade("hset", err)
		return c.mem.HSet(ctx, key, field, raw)
	}
	return nil
}

// HGet returns the decoded value under field in the hash at key, or nil
// when the hash or field is absent.
func (c *Client) HGet(ctx context.Context, key, field string) (any, error) {
	if c.Mode() != ModeConnected {
		raw, ok, _ := c.mem.HGet(ctx, key, field)
		return decodeIf(raw, ok), nil
	}
	raw, ok, err := c.remote.HGet(ctx, key, field)
	if err != nil && isReadOnlyErr(err) {
		raw, ok, err = c.remote.HGet(ctx, key, field)
	}
	if err != nil {
		c.degrade("hget", err)
		raw, ok, _ = c.mem.HGet(ctx, key, field)
	}
	return decodeIf(raw, ok), nil
}

// LPush prepends value to the list at key and returns the new length.
func (c *Client) LPush(ctx context.Context, key string, value any) (int64, error) {
	raw, err := store.Encode(value)
	if err != nil {
		return 0, err
	}
	if c.Mode() != ModeConnected {
		n, _ := c.mem.LPush(ctx, key, raw)
		return n, nil
	}
	n, err := c.remote.LPush(ctx, key, raw)
	if err != nil && isReadOnlyErr(err) {
		n, err = c.remote.LPush(ctx, key, raw)
	}
	if err != nil {
		c.degrade("lpush", err)
		n, _ = c.mem.LPush(ctx, key, raw)
	}
	return n, nil
}

// RPop removes and returns the decoded tail of the list at key, or nil when
// the list is absent or empty.
func (c *Client) RPop(ctx context.Context, key string) (any, error) {
	if c.Mode() != ModeConnected {
		raw, ok, _ := c.mem.RPop(ctx, key)
		return decodeIf(raw, ok), nil
	}
	raw, ok, err := c.remote.RPop(ctx, key)
	if err != nil && isReadOnlyErr(err) {
		raw, ok, err = c.remote.RPop(ctx, key)
	}
	if err != nil {
		c.degrade("rpop", err)
		raw, ok, _ = c.mem.RPop(ctx, key)
	}
	return decodeIf(raw, ok), nil
}
