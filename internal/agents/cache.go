package agents

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/observability"
)

const fetchKey = "agents"

// Cache holds the fetched agent directory and the user's selection.
type Cache struct {
	directory    Directory
	defaultAgent Identity
	metrics      *observability.Metrics
	logger       zerolog.Logger

	group    singleflight.Group
	inFlight atomic.Int32

	mu       sync.RWMutex
	agents   []Agent
	selected *Identity
}

func NewCache(directory Directory, defaultAgent Identity, metrics *observability.Metrics, logger zerolog.Logger) *Cache {
	return &Cache{
		directory:    directory,
		defaultAgent: defaultAgent,
		metrics:      metrics,
		logger:       logger.With().Str("component", "agents").Logger(),
	}
}

// FetchAll fetches the directory and replaces the cached list. Concurrent
// callers share a single in-flight fetch and its result. On failure the
// previous list is kept.
func (c *Cache) FetchAll(ctx context.Context) ([]Agent, error) {
	ch := c.group.DoChan(fetchKey, func() (any, error) {
		c.inFlight.Add(1)
		defer c.inFlight.Add(-1)

		started := time.Now()
		// The shared fetch must not die with the first caller's context.
		list, err := c.directory.ListAgents(context.WithoutCancel(ctx))
		c.metrics.ObserveCapability("agents", "fetch", started, err)
		if err != nil {
			c.observeFetch("error")
			c.logger.Error().Err(err).Msg("agent directory fetch failed")
			return nil, lifecycle.Capability("fetch agents", err)
		}

		c.mu.Lock()
		c.agents = append([]Agent(nil), list...)
		c.mu.Unlock()
		c.observeFetch("ok")
		c.logger.Info().Int("count", len(list)).Msg("agent directory fetched")
		return cloneAgents(list), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.observeFetch("shared")
		}
		return cloneAgents(res.Val.([]Agent)), nil
	}
}

// Open is the lazy trigger behind viewing the directory: it fetches only when
// nothing is cached, joining an in-flight fetch rather than issuing another.
func (c *Cache) Open(ctx context.Context) ([]Agent, error) {
	if cached := c.Agents(); len(cached) > 0 {
		return cached, nil
	}
	return c.FetchAll(ctx)
}

// Select records the user's choice. It always succeeds.
func (c *Cache) Select(id, displayName string) Identity {
	ident := Identity{ID: strings.TrimSpace(id), DisplayName: strings.TrimSpace(displayName)}
	c.mu.Lock()
	c.selected = &ident
	c.mu.Unlock()
	return ident
}

func (c *Cache) ClearSelection() {
	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
}

func (c *Cache) Selected() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return Identity{}, false
	}
	return *c.selected, true
}

func (c *Cache) Agents() []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAgents(c.agents)
}

func (c *Cache) Loading() bool {
	return c.inFlight.Load() > 0
}

func (c *Cache) Default() Identity {
	return c.defaultAgent
}

// Resolve picks the agent for a new conversation: user-selected, then the
// externally provided identity, then the configured default.
func (c *Cache) Resolve(provided *Identity) (Identity, bool) {
	if sel, ok := c.Selected(); ok && sel.Valid() {
		return sel, true
	}
	if provided != nil && provided.Valid() {
		return Identity{ID: strings.TrimSpace(provided.ID), DisplayName: strings.TrimSpace(provided.DisplayName)}, true
	}
	if c.defaultAgent.Valid() {
		return c.defaultAgent, true
	}
	return Identity{}, false
}

func (c *Cache) observeFetch(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.AgentFetches.WithLabelValues(outcome).Inc()
}

func cloneAgents(in []Agent) []Agent {
	if in == nil {
		return nil
	}
	return append([]Agent(nil), in...)
}
