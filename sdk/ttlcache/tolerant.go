package ttlcache

// Tolerant decorates a Cache so that Contains and Remove accept empty and
// absent keys: Contains reports false and Remove does nothing. Set, Get and
// GetOrAdd keep rejecting empty keys.
type Tolerant struct {
	*Cache
}

// NewTolerant wraps c. A nil c creates a new cache.
func NewTolerant(c *Cache) *Tolerant {
	if c == nil {
		c = New()
	}
	return &Tolerant{Cache: c}
}

// Contains reports whether key holds a live entry
func (t *Tolerant) Contains(key string) bool {
	ok, err := t.Cache.Contains(key)
	return err == nil && ok
}

// Remove evicts key if present
func (t *Tolerant) Remove(key string) {
	_ = t.Cache.Remove(key)
}
