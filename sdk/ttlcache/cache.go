// Package ttlcache is a small in-process store of lazily produced values
// that expire a fixed time after insertion.
//
// Values are typed at lookup: Get and GetOrAdd are generic and report a
// *CastError when the stored value has another type. Expiry is evaluated
// lazily on access; Purge drops expired entries eagerly.
//
// Population is not single-flight. Two goroutines calling GetOrAdd for the
// same fresh key may both run their factory; each receives its own value
// and the later store wins.
package ttlcache

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// DefaultTTL is used when a non-positive ttl is passed.
const DefaultTTL = 5 * time.Minute

var (
	// ErrNotFound is returned when a key is absent or expired
	ErrNotFound = errors.New("ttlcache: key not found")

	// ErrInvalidKey is returned for an empty key
	ErrInvalidKey = errors.New("ttlcache: key must not be empty")

	// ErrNilFactory is returned when no factory is supplied
	ErrNilFactory = errors.New("ttlcache: factory must not be nil")
)

// CastError is returned when a stored value does not have the requested type.
type CastError struct {
	Key  string
	Want string
	Got  string
}

// Error implements the error interface
func (e *CastError) Error() string {
	return fmt.Sprintf("ttlcache: value for key %q is %s, not %s", e.Key, e.Got, e.Want)
}

// Factory produces the value of an entry. It runs at most once per entry,
// on first read.
type Factory func() (interface{}, error)

type entry struct {
	load    func() (interface{}, error)
	expires time.Time
}

func (e *entry) alive(now time.Time) bool {
	return now.Before(e.expires)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL replaces DefaultTTL for this cache
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) newEntry(factory Factory, ttl time.Duration) *entry {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return &entry{
		load:    sync.OnceValues((func() (interface{}, error))(factory)),
		expires: c.now().Add(ttl),
	}
}

// Set stores the value produced by factory under key for ttl. The factory
// is not called until the entry is first read.
func (c *Cache) Set(key string, factory Factory, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if factory == nil {
		return ErrNilFactory
	}
	e := c.newEntry(factory, ttl)

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// SetValue stores an already produced value
func (c *Cache) SetValue(key string, value interface{}, ttl time.Duration) error {
	return c.Set(key, func() (interface{}, error) { return value, nil }, ttl)
}

// Contains reports whether key holds a live entry. It does not run the
// entry's factory.
func (c *Cache) Contains(key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	return c.lookup(key) != nil, nil
}

// Remove evicts key. It returns ErrNotFound when there was no live entry.
func (c *Cache) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return ErrNotFound
	}
	delete(c.entries, key)
	if !e.alive(c.now()) {
		return ErrNotFound
	}
	return nil
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !e.alive(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if e.alive(now) {
			n++
		}
	}
	return n
}

// lookup returns the live entry for key, dropping it if expired.
func (c *Cache) lookup(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !e.alive(c.now()) {
		delete(c.entries, key)
		return nil
	}
	return e
}

func (c *Cache) store(key string, e *entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// discard removes key only if it still maps to e.
func (c *Cache) discard(key string, e *entry) {
	c.mu.Lock()
	if c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// value runs the entry factory. A failed factory evicts the entry so the
// next read tries again.
func (c *Cache) value(key string, e *entry) (interface{}, error) {
	v, err := e.load()
	if err != nil {
		c.discard(key, e)
		return nil, err
	}
	return v, nil
}

// Get returns the live value stored under key as T.
//
// It returns ErrNotFound when the key is absent or expired and a *CastError
// when the value is not a T.
func Get[T any](c *Cache, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, ErrInvalidKey
	}
	e := c.lookup(key)
	if e == nil {
		return zero, ErrNotFound
	}
	v, err := c.value(key, e)
	if err != nil {
		return zero, err
	}
	return cast[T](key, v)
}

// GetOrAdd returns the live value stored under key, or stores and returns
// the value produced by factory. The factory is never called on a hit.
func GetOrAdd[T any](c *Cache, key string, factory func() (T, error), ttl time.Duration) (T, error) {
	var zero T
	if key == "" {
		return zero, ErrInvalidKey
	}
	if factory == nil {
		return zero, ErrNilFactory
	}

	if e := c.lookup(key); e != nil {
		v, err := c.value(key, e)
		if err != nil {
			return zero, err
		}
		return cast[T](key, v)
	}

	e := c.newEntry(func() (interface{}, error) {
		return factory()
	}, ttl)
	c.store(key, e)

	v, err := c.value(key, e)
	if err != nil {
		return zero, err
	}
	return cast[T](key, v)
}

func cast[T any](key string, v interface{}) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	return zero, &CastError{
		Key:  key,
		Want: reflect.TypeOf((*T)(nil)).Elem().String(),
		Got:  typeName(v),
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
