package config

import (
	"context"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"groupwatch/pkg/logx"
)

// reloadDebounce delays the reload after a file event so atomic-save
// sequences (write temp, rename over) are read once, fully written.
const reloadDebounce = 250 * time.Millisecond

// Manager owns the config file: initial load, hot reload on file change,
// and fan-out of committed configs to subscribers. A reload is committed
// only after the validator accepts it; a bad edit keeps the previous
// config in force.
type Manager struct {
	path string

	mu   sync.RWMutex
	cfg  *Config
	hash uint64 // fnv-64a of the raw bytes behind cfg

	// subsMu also serializes publish against Unsubscribe so a send never
	// races a close.
	subsMu sync.Mutex
	subs   []chan *Config

	timerMu sync.Mutex
	timer   *time.Timer

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the check run on every reloaded config before it
// is committed and published.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file without committing the result.
func (m *Manager) Parse() (*Config, error) {
	cfg, _, err := m.read()
	return cfg, err
}

func (m *Manager) read() (*Config, uint64, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, 0, err
	}
	cfg, err := decodeConfig(m.path, raw)
	if err != nil {
		return nil, 0, err
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return cfg, h.Sum64(), nil
}

// Load reads, decodes, and commits the config. Called once at startup;
// afterwards Watch keeps the committed config current.
func (m *Manager) Load() (*Config, error) {
	cfg, h, err := m.read()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, h)
	return cfg, nil
}

func (m *Manager) commit(cfg *Config, hash uint64) {
	m.mu.Lock()
	m.cfg = cfg
	m.hash = hash
	m.mu.Unlock()
}

// Get returns the last committed config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers cfg to every subscriber. A full buffer sheds its oldest
// entry first: subscribers always see the newest config, never a stale one
// blocking a fresh one.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				if !m.log.IsZero() {
					m.log.Debug("config update dropped (subscriber slow)",
						logx.Int("queue_len", len(ch)), logx.Int("queue_cap", cap(ch)))
				}
			}
		}
	}
}

// scheduleReload (re)arms the debounce timer; bursts of file events
// collapse into one reload.
func (m *Manager) scheduleReload(ctx context.Context) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(reloadDebounce, func() { m.reload(ctx) })
}

func (m *Manager) reload(ctx context.Context) {
	cfg, h, err := m.read()
	if err != nil {
		if !m.log.IsZero() {
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		}
		return
	}

	m.mu.RLock()
	unchanged := h == m.hash
	m.mu.RUnlock()
	if unchanged {
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			}
			return
		}
	}

	m.commit(cfg, h)
	m.publish(cfg)
	if !m.log.IsZero() {
		m.log.Debug("config published", logx.String("path", m.path))
	}
}

// Watch blocks until ctx is done, reloading the config whenever the file
// changes. A broken fsnotify watcher is recreated with jittered backoff
// rather than taking the process down.
func (m *Manager) Watch(ctx context.Context) error {
	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for ctx.Err() == nil {
		err := m.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped, restarting",
				logx.String("path", m.path), logx.Err(err))
		}

		sleep := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < backoffMax {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
	return nil
}

// watch runs one watcher lifetime. It returns when the watcher breaks or
// ctx ends. The directory is watched, not the file: editors and atomic
// saves replace the inode, which would silently detach a file watch.
func (m *Manager) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	file := filepath.Base(m.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				m.scheduleReload(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err == nil {
				continue
			}
			// The event stream may have gaps now; reload once to resync,
			// then keep watching.
			if !m.log.IsZero() {
				m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
			}
			m.scheduleReload(ctx)
		}
	}
}
