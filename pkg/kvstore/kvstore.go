// Package kvstore is the public facade: a process-level context
// bundling the storage registry and reclaimer lifecycle behind the
// enter/leave/put/get/scan/remove/create-storage/display surface the
// rest of the repo (and the CLI) drives.
package kvstore

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"stratum/pkg/config"
	"stratum/pkg/registry"
	"stratum/pkg/stratum"
)

// Context is the process-level handle every facade call is a method of.
// Exactly one should exist per process (or per isolated test); it is
// safe to share across goroutines.
type Context struct {
	cfg config.Config
	log *zap.Logger

	sessions *stratum.SessionRegistry
	reclaim  *stratum.Reclaimer
	metrics  *stratum.Metrics
	registry *registry.Registry

	closeOnce sync.Once
}

// Init constructs a Context and starts its background reclaimer. reg
// may be nil to skip Prometheus registration entirely.
func Init(cfg config.Config, reg prometheus.Registerer, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	var metrics *stratum.Metrics
	if cfg.MetricsEnabled {
		metrics = stratum.NewMetrics(reg)
	}

	sessions := stratum.NewSessionRegistry(cfg.MaxSessions, log)
	reclaim := stratum.NewReclaimer(sessions, cfg.EpochTickInterval, cfg.EpochTickBackoffMax, log)
	if metrics != nil {
		reclaim.SetMetrics(metrics)
	}
	reclaim.Start()

	c := &Context{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		reclaim:  reclaim,
		metrics:  metrics,
		registry: registry.New(log),
	}
	log.Info("kvstore initialized", zap.Int("max_sessions", cfg.MaxSessions))
	return c
}

// Fin stops the background reclaimer. Safe to call more than once; only
// the first call has effect.
func (c *Context) Fin() {
	c.closeOnce.Do(func() {
		c.reclaim.Stop()
		c.log.Info("kvstore finalized")
	})
}

// Enter allocates a session token.
func (c *Context) Enter() (stratum.Token, stratum.Status) {
	return c.sessions.Enter(c.reclaim.CurrentEpoch())
}

// Leave releases tok and lets the reclaimer absorb its garbage.
func (c *Context) Leave(tok stratum.Token) stratum.Status {
	return c.reclaim.LeaveSession(tok)
}

// CreateStorage registers a new, empty named tree.
func (c *Context) CreateStorage(name string) stratum.Status {
	_, status := c.registry.Create(name, c.reclaim, c.sessions, c.metrics)
	return status
}

// DeleteStorage removes a named tree.
func (c *Context) DeleteStorage(name string) stratum.Status {
	return c.registry.Delete(name)
}

// FindStorage resolves a named tree.
func (c *Context) FindStorage(name string) (*stratum.Tree, stratum.Status) {
	return c.registry.Find(name)
}

// Storages lists every currently registered storage name.
func (c *Context) Storages() []string {
	return c.registry.Names()
}

// Put inserts or updates key in storage.
func (c *Context) Put(ctx context.Context, tok stratum.Token, storage string, key, value []byte, alignment int, allowInsert bool) (bool, stratum.Status) {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return false, status
	}
	return t.Put(ctx, tok, key, value, alignment, allowInsert)
}

// PutWithStamp is Put plus the post-mutation version stamp of the border
// that absorbed the write.
func (c *Context) PutWithStamp(ctx context.Context, tok stratum.Token, storage string, key, value []byte, alignment int, allowInsert bool) (bool, stratum.VersionStamp, stratum.Status) {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return false, stratum.VersionStamp{}, status
	}
	return t.PutWithStamp(ctx, tok, key, value, alignment, allowInsert)
}

// Get resolves key in storage.
func (c *Context) Get(ctx context.Context, tok stratum.Token, storage string, key []byte) ([]byte, stratum.Status) {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return nil, status
	}
	v, status := t.Get(ctx, tok, key)
	if status != stratum.OK {
		return nil, status
	}
	return v.Bytes(), stratum.OK
}

// Remove deletes key from storage.
func (c *Context) Remove(ctx context.Context, tok stratum.Token, storage string, key []byte) stratum.Status {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return status
	}
	return t.Remove(ctx, tok, key)
}

// Scan runs a ranged read over storage.
func (c *Context) Scan(ctx context.Context, tok stratum.Token, storage string, begin []byte, beginEp stratum.Endpoint, end []byte, endEp stratum.Endpoint, max int, reverse bool) ([]stratum.ScanEntry, []stratum.VersionStamp, stratum.Status) {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return nil, nil, status
	}
	return t.Scan(ctx, tok, begin, beginEp, end, endEp, max, reverse)
}

// Display renders storage's debug dump.
func (c *Context) Display(storage string) (string, stratum.Status) {
	t, status := c.registry.Find(storage)
	if status != stratum.OK {
		return "", status
	}
	return t.Display(), stratum.OK
}

// Destroy drops every registered storage.
func (c *Context) Destroy() stratum.Status {
	return c.registry.DestroyAll()
}
