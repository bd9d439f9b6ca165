package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned by Do once the pool has been stopped.
var ErrStopped = errors.New("worker: pool stopped")

// Config holds the configuration for the session pool.
type Config struct {
	MaxConcurrent int64
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Pool runs operations keyed by session id. Operations sharing a key run one
// at a time in arrival order of lock acquisition; distinct keys run
// concurrently up to MaxConcurrent.
type Pool struct {
	config     Config
	semaphore  *semaphore.Weighted
	mu         sync.Mutex
	active     bool
	inflight   sync.WaitGroup
	keyLocks   map[string]*keyLock
	keyLocksMu sync.Mutex
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewPool creates a pool.
func NewPool(cfg Config) *Pool {
	// Set sane defaults
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 25
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		config:    cfg,
		semaphore: semaphore.NewWeighted(cfg.MaxConcurrent),
		active:    true,
		keyLocks:  make(map[string]*keyLock),
	}
}

// Do runs fn holding the lock for key. The context passed to fn carries the
// pool timeout.
func (p *Pool) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrStopped
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	if err := p.semaphore.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker: acquire slot for %q: %w", key, err)
	}
	defer p.semaphore.Release(1)

	// If a key is provided, acquire the specific lock for that key.
	if key != "" {
		lock := p.acquireKey(key)
		lock.mu.Lock()
		defer p.releaseKey(key, lock)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(runCtx)
	if err != nil {
		p.config.Logger.Error("Session operation failed", zap.String("key", key), zap.Error(err))
		return err
	}
	p.config.Logger.Debug("Session operation finished", zap.String("key", key), zap.Duration("took", time.Since(start)))
	return nil
}

// acquireKey retrieves or creates the lock for a key and pins it.
func (p *Pool) acquireKey(key string) *keyLock {
	p.keyLocksMu.Lock()
	defer p.keyLocksMu.Unlock()
	lock, exists := p.keyLocks[key]
	if !exists {
		lock = &keyLock{}
		p.keyLocks[key] = lock
	}
	lock.refs++
	return lock
}

// releaseKey unlocks and drops the lock once nobody is waiting on it.
func (p *Pool) releaseKey(key string, lock *keyLock) {
	lock.mu.Unlock()
	p.keyLocksMu.Lock()
	defer p.keyLocksMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.keyLocks, key)
	}
}

// Stop rejects new operations and waits for in-flight ones.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.mu.Unlock()

	p.inflight.Wait()
	p.config.Logger.Info("Stopped session pool")
}
