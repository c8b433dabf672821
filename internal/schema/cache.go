package schema

import "sync"

// Cache is the process-wide schema cache, keyed by table name. It is an
// explicit injectable object rather than package state so that whoever
// constructs the record engine owns it, and tests can reset it.
type Cache struct {
	mu      sync.RWMutex
	schemas map[string]*TableSchema
}

// NewCache creates an empty schema cache
func NewCache() *Cache {
	return &Cache{schemas: make(map[string]*TableSchema)}
}

// Get returns the cached schema for a table, or nil
func (c *Cache) Get(table string) *TableSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[table]
}

// Set stores a schema
func (c *Cache) Set(table string, s *TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[table] = s
}

// Clear empties the cache. Administrative use: schemas are otherwise never
// invalidated for the life of the process.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = make(map[string]*TableSchema)
}

// Len returns the number of cached schemas
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schemas)
}
