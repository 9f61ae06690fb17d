package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// errLockBusy 锁被占用，自旋重试.
var errLockBusy = errors.New("lock busy")

// LockOptions 锁的自旋参数.
type LockOptions struct {
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}

	if o.InitialInterval <= 0 {
		o.InitialInterval = 5 * time.Millisecond
	}

	if o.MaxInterval <= 0 {
		o.MaxInterval = 100 * time.Millisecond
	}

	return o
}

// ReentrantLock 跨进程互斥锁: 进程内用 sync.Mutex，进程间用锁文件上的 flock.
//
// 重入以调用链为单位: Acquire 返回的 ctx 带有持有标记，
// 用该 ctx（或其派生 ctx）再次 Acquire 会立即成功且不会重复加锁.
// 没有标记的调用者（其它 goroutine 或进程）会自旋等待直到超时.
type ReentrantLock struct {
	path string
	opts LockOptions

	mu   sync.Mutex
	file *os.File
}

type holdKey struct{ lock *ReentrantLock }

type hold struct{ released atomic.Bool }

// NewReentrantLock 创建锁，path 所在目录必须存在或可创建.
func NewReentrantLock(path string, opts LockOptions) (*ReentrantLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	return &ReentrantLock{path: path, opts: opts.withDefaults()}, nil
}

// Path 返回锁文件路径.
func (l *ReentrantLock) Path() string {
	return l.path
}

// Held 判断 ctx 所在调用链是否已持有该锁.
func (l *ReentrantLock) Held(ctx context.Context) bool {
	h, ok := ctx.Value(holdKey{l}).(*hold)
	return ok && !h.released.Load()
}

// Acquire 获取锁，返回带持有标记的 ctx 和释放函数. 释放函数可重复调用.
func (l *ReentrantLock) Acquire(ctx context.Context) (context.Context, func(), error) {
	if l.Held(ctx) {
		return ctx, func() {}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.opts.InitialInterval
	bo.MaxInterval = l.opts.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, l.tryAcquire()
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(l.opts.Timeout))
	if err != nil {
		if errors.Is(err, errLockBusy) {
			return ctx, nil, fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}

		return ctx, nil, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}

	h := &hold{}

	var once sync.Once

	release := func() {
		once.Do(func() {
			h.released.Store(true)
			l.release()
		})
	}

	return context.WithValue(ctx, holdKey{l}, h), release, nil
}

// With 在锁内执行 fn.
func (l *ReentrantLock) With(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}

func (l *ReentrantLock) tryAcquire() error {
	if !l.mu.TryLock() {
		return errLockBusy
	}

	f, err := lockFile(l.path)
	if err != nil {
		l.mu.Unlock()

		if errors.Is(err, errLockBusy) {
			return err
		}

		return backoff.Permanent(err)
	}

	l.file = f

	return nil
}

func (l *ReentrantLock) release() {
	if l.file != nil {
		_ = unlockFile(l.file)
		l.file = nil
	}

	l.mu.Unlock()
}
