package pipeline

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// strategy is the memoized decision for one (policy type, method) pair.
type strategy struct {
	deferred  bool
	continues bool
	zero      func() any
}

type strategyKey struct {
	policy reflect.Type
	method string
}

// StrategyCache memoizes how a policy type treats a method. Reads take a
// shared lock; the first computation of a key runs once even under contention.
type StrategyCache struct {
	mu       sync.RWMutex
	policies map[reflect.Type]bool
	methods  map[strategyKey]strategy
	group    singleflight.Group
	computed atomic.Int64
}

// NewStrategyCache creates an empty cache.
func NewStrategyCache() *StrategyCache {
	return &StrategyCache{
		policies: make(map[reflect.Type]bool),
		methods:  make(map[strategyKey]strategy),
	}
}

var sharedStrategies = NewStrategyCache()

// Computed returns how many strategies were computed rather than read.
func (c *StrategyCache) Computed() int64 { return c.computed.Load() }

// continues reports whether the policy type implements a continuation,
// computing it once per type.
func (c *StrategyCache) continues(pt reflect.Type, check func() bool) bool {
	c.mu.RLock()
	v, ok := c.policies[pt]
	c.mu.RUnlock()
	if ok {
		return v
	}
	out, _, _ := c.group.Do(fmt.Sprintf("policy|%p", pt), func() (any, error) {
		c.mu.RLock()
		v, ok := c.policies[pt]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		v = check()
		c.mu.Lock()
		c.policies[pt] = v
		c.mu.Unlock()
		return v, nil
	})
	return out.(bool)
}

func (c *StrategyCache) resolve(pt reflect.Type, check func() bool, m *Method) strategy {
	key := strategyKey{policy: pt, method: m.Key()}
	c.mu.RLock()
	st, ok := c.methods[key]
	c.mu.RUnlock()
	if ok {
		return st
	}
	out, _, _ := c.group.Do(fmt.Sprintf("method|%p|%s", pt, key.method), func() (any, error) {
		c.mu.RLock()
		st, ok := c.methods[key]
		c.mu.RUnlock()
		if ok {
			return st, nil
		}
		st = strategy{continues: c.continues(pt, check)}
		if m != nil {
			st.deferred = m.Result == Deferred
			if rt := m.ResultType; rt != nil {
				st.zero = func() any { return reflect.Zero(rt).Interface() }
			}
		}
		c.computed.Add(1)
		c.mu.Lock()
		c.methods[key] = st
		c.mu.Unlock()
		return st, nil
	})
	return out.(strategy)
}
