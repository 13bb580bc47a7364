package flow

import (
	"sync"
	"time"
)

// agentHandle is the runtime-resolved shape of a compiled workflow.AgentSpec:
// everything needed to invoke the agent without re-walking the compiled
// spec each time.
type agentHandle struct {
	name string
	model string
	tools []string
	instruction string
	lastUsed time.Time
}

// agentHandleCache caches resolved agent handles and evicts ones that have
// sat idle past ttl: long-lived flow runtimes (a REPL, a long-running
// worker) would otherwise accumulate one handle per agent forever.
type agentHandleCache struct {
	mu sync.Mutex
	ttl time.Duration
	entries map[string]*agentHandle
}

func newAgentHandleCache(ttl time.Duration) *agentHandleCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &agentHandleCache{ttl: ttl, entries: map[string]*agentHandle{}}
}

// getOrCreate returns the cached handle for name, creating it via build if
// absent, and evicts any other entries that have gone idle past ttl.
func (c *agentHandleCache) getOrCreate(name string, build func() *agentHandle) *agentHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, h := range c.entries {
		if k != name && now.Sub(h.lastUsed) > c.ttl {
			delete(c.entries, k)
		}
	}
	h, ok := c.entries[name]
	if !ok {
		h = build()
		c.entries[name] = h
	}
	h.lastUsed = now
	return h
}
