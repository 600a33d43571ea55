// Package cache provides a bounded generic LRU cache.
//
//	c := cache.New[kernKey, float64](4096)
//	c.Put(key, 1.5)
//	v, ok := c.Get(key)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
