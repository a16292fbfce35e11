// Package runtimeconfig implements an optional on-device YAML override file
// that the session controller reads when a session starts, hot-reloaded via
// fsnotify. Ported from the teacher's internal/runtime RuntimeConfigManager
// + HotReloadSystem (fsnotify.Watcher watching a single path, yaml.v3
// decode, checksum-gated swap), trimmed to the handful of fields this SDK
// actually tunes at runtime.
package runtimeconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Overlay is the subset of Config fields that can be tuned on-device
// without a host release.
type Overlay struct {
	SampleRateHz     int  `yaml:"sample_rate_hz"`
	UploadIntervalMs int  `yaml:"upload_interval_ms"`
	RetryIntervalMs  int  `yaml:"retry_interval_ms"`
	LoggingEnabled   bool `yaml:"logging_enabled"`
}

// Validate checks the overlay against the same bounds Config enforces at
// construction (spec §6). A zero field means "not overridden".
func (o Overlay) Validate() error {
	if o.SampleRateHz != 0 && (o.SampleRateHz < 1 || o.SampleRateHz > 100) {
		return fmt.Errorf("sample_rate_hz override must be in [1,100], got %d", o.SampleRateHz)
	}
	if o.UploadIntervalMs != 0 && o.UploadIntervalMs < 1000 {
		return fmt.Errorf("upload_interval_ms override must be >= 1000, got %d", o.UploadIntervalMs)
	}
	if o.RetryIntervalMs != 0 && o.RetryIntervalMs < 1000 {
		return fmt.Errorf("retry_interval_ms override must be >= 1000, got %d", o.RetryIntervalMs)
	}
	return nil
}

// Manager watches a single YAML file and exposes the most recently valid
// Overlay decoded from it. Absence of the file is not an error: Current
// returns the zero Overlay (no overrides) until the file is created.
type Manager struct {
	path     string
	current  atomic.Pointer[Overlay]
	checksum atomic.Pointer[string]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewManager constructs a Manager for path. Call Start to begin watching;
// path may not exist yet.
func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.current.Store(&Overlay{})
	return m
}

// Current returns the most recently loaded, validated Overlay. Never nil.
func (m *Manager) Current() Overlay {
	if o := m.current.Load(); o != nil {
		return *o
	}
	return Overlay{}
}

// Start performs an initial load (best-effort) and begins watching for
// writes. Returns nil immediately if path is empty (runtime overlay
// disabled).
func (m *Manager) Start() error {
	if m.path == "" {
		return nil
	}
	m.reload() // best-effort initial load; missing file is not fatal

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}
	go m.watchLoop(w)
	return nil
}

// Close stops the watcher, if running.
func (m *Manager) Close() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (m *Manager) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Name == m.path && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				m.reload()
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
			// Watcher errors are non-fatal; the overlay simply keeps its
			// last-known-good value.
		}
	}
}

// reload decodes the file at m.path and, if it validates and its content
// checksum differs from the last applied one, atomically swaps Current.
func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return // missing/unreadable file: keep last-known-good overlay
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if prev := m.checksum.Load(); prev != nil && *prev == checksum {
		return
	}

	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return // malformed file: keep last-known-good overlay
	}
	if err := o.Validate(); err != nil {
		return // out-of-range override: keep last-known-good overlay
	}

	m.current.Store(&o)
	m.checksum.Store(&checksum)
}
