package driver

import (
	"sync"

	"irasm/internal/fileformat"
	"irasm/internal/project"
)

// minimal per-process cache by file path + content hash
type cached struct {
	content project.Digest
	module  *fileformat.CompiledModule
}

// ModuleCache keeps decoded dependency modules between batches.
type ModuleCache struct {
	mu     sync.RWMutex
	byPath map[string]cached
}

// NewModuleCache creates a ModuleCache with the given capacity hint.
func NewModuleCache(capHint int) *ModuleCache {
	return &ModuleCache{byPath: make(map[string]cached, capHint)}
}

// Get returns the module decoded from path when its content is unchanged.
// Callers get their own copy.
func (c *ModuleCache) Get(path string, content project.Digest) (*fileformat.CompiledModule, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	rec, ok := c.byPath[path]
	c.mu.RUnlock()
	if !ok || rec.content != content {
		return nil, false
	}
	return rec.module.Clone(), true
}

// Put records the module decoded from path.
func (c *ModuleCache) Put(path string, content project.Digest, m *fileformat.CompiledModule) {
	if c == nil || m == nil {
		return
	}
	c.mu.Lock()
	c.byPath[path] = cached{content: content, module: m.Clone()}
	c.mu.Unlock()
}

// Len reports the number of cached modules.
func (c *ModuleCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPath)
}
