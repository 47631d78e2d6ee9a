// Package session owns the normalized-table cache of a running dashboard.
// Each distinct row limit is loaded at most once and then shared read-only
// by every request until the cache is invalidated.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/logging"
	"github.com/KaramelBytes/crashlens/internal/metrics"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// Loader reads and normalizes the dataset with a row limit.
type Loader func(ctx context.Context, maxRows int) (*normalize.Table, error)

// FileLoader returns a Loader for the file at path.
func FileLoader(path string, dopt dataset.Options, nopt normalize.Options) Loader {
	return func(ctx context.Context, maxRows int) (*normalize.Table, error) {
		opt := dopt
		opt.MaxRows = maxRows
		raw, err := dataset.Load(ctx, path, opt)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		return normalize.Normalize(raw, nopt), nil
	}
}

// Options configures a Session.
type Options struct {
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Session caches normalized tables keyed by row limit.
type Session struct {
	id      string
	load    Loader
	tables  *cache.Cache
	group   singleflight.Group
	log     *slog.Logger
	metrics *metrics.Metrics

	// gen is bumped by Invalidate; loads started under an older gen are
	// returned to their waiters but never cached.
	mu  sync.Mutex
	gen uint64
}

// New creates a session around load. Cached tables never expire.
func New(load Loader, opt Options) *Session {
	id := uuid.NewString()
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Session{
		id:      id,
		load:    load,
		tables:  cache.New(cache.NoExpiration, 0),
		log:     log.With("module", "session", "session_id", id),
		metrics: opt.Metrics,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Table returns the normalized table for maxRows, loading it on first use.
// Concurrent first requests for the same key share one load. Load errors are
// returned to every waiter and not cached.
func (s *Session) Table(ctx context.Context, maxRows int) (*normalize.Table, error) {
	key := strconv.Itoa(maxRows)
	if v, ok := s.tables.Get(key); ok {
		s.recordCache(true)
		return v.(*normalize.Table), nil
	}
	s.recordCache(false)

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	// Requests arriving after an Invalidate never join a flight started before it.
	flight := key + "@" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(flight, func() (any, error) {
		if v, ok := s.tables.Get(key); ok {
			return v, nil
		}
		start := time.Now()
		t, err := s.load(context.WithoutCancel(ctx), maxRows)
		elapsed := time.Since(start)
		if err != nil {
			s.log.Error("dataset load failed", "max_rows", maxRows, "error", err)
			if s.metrics != nil {
				s.metrics.RecordLoad(elapsed.Seconds(), 0, err)
			}
			return nil, err
		}
		s.mu.Lock()
		current := s.gen == gen
		if current {
			s.tables.Set(key, t, cache.NoExpiration)
		}
		s.mu.Unlock()
		if !current {
			s.log.Info("discarding table loaded before invalidation", "max_rows", maxRows)
		}
		s.log.Info("dataset loaded", "source", t.Name, "max_rows", maxRows,
			"rows", len(t.Records), "dropped", t.Dropped, "elapsed", elapsed)
		if s.metrics != nil {
			s.metrics.RecordLoad(elapsed.Seconds(), len(t.Records), nil)
		}
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*normalize.Table), nil
	}
}

// Invalidate drops every cached table; the next request reloads.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.gen++
	n := s.tables.ItemCount()
	s.tables.Flush()
	s.mu.Unlock()
	s.log.Info("cache invalidated", "entries", n)
}

// Len returns the number of cached tables.
func (s *Session) Len() int { return s.tables.ItemCount() }

func (s *Session) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCache(hit)
	}
}
