package core

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the operator-facing tunables for a FrameGraph instance.
// Everything the compiler itself decides (layouts, barrier placement,
// subpass fusion) is derived from the declared passes/usages and is never
// configurable — Config only covers policy knobs around that core.
type Config struct {
	// FramesInFlight bounds how many frames may be compiling/executing
	// concurrently before the executor blocks on a fence wait.
	FramesInFlight int `toml:"frames_in_flight"`
	// EnableAliasing turns on transient-resource memory aliasing via
	// per-resource disposal-event waits.
	EnableAliasing bool `toml:"enable_aliasing"`
	// EnableValidation requests VK_EXT_debug_report in debug builds.
	EnableValidation bool `toml:"enable_validation"`
	// EventPoolPreallocate sizes each queue family's event pool up front
	// so steady-state frames never allocate a VkEvent mid-compile.
	EventPoolPreallocate int `toml:"event_pool_preallocate"`
	// LogLevel is one of debug|info|warn|error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the values a single-GPU development build should
// start from before any config file is loaded.
func DefaultConfig() Config {
	return Config{
		FramesInFlight:       2,
		EnableAliasing:       true,
		EnableValidation:     false,
		EventPoolPreallocate: 16,
		LogLevel:             "info",
	}
}

// ConfigWatcher loads a TOML config file and optionally hot-reloads it
// when the file changes on disk, via fsnotify.
type ConfigWatcher struct {
	mu       sync.RWMutex
	current  Config
	path     string
	watcher  *fsnotify.Watcher
	done     chan struct{}
	onChange func(Config)
}

// NewConfigWatcher loads path once; if the file does not exist, the
// returned watcher holds DefaultConfig and path is created lazily by the
// caller (the watcher never writes the file itself).
func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	cw := &ConfigWatcher{
		current: DefaultConfig(),
		path:    path,
		done:    make(chan struct{}),
	}
	if err := cw.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cw.watcher = w
	if err := w.Add(path); err != nil {
		// Watching a not-yet-created file is allowed; reload() already
		// fell back to defaults above.
		LogWarn("config watcher could not watch %s yet: %v", path, err)
	}
	go cw.run()
	return cw, nil
}

// OnChange registers a callback invoked (with the new config) every time
// the watched file is rewritten and re-parses successfully.
func (cw *ConfigWatcher) OnChange(fn func(Config)) {
	cw.mu.Lock()
	cw.onChange = fn
	cw.mu.Unlock()
}

func (cw *ConfigWatcher) Current() Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.current
}

func (cw *ConfigWatcher) reload() error {
	data, err := os.ReadFile(cw.path)
	if err != nil {
		return err
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	cw.mu.Lock()
	cw.current = cfg
	cb := cw.onChange
	cw.mu.Unlock()
	SetLevel(parseLevel(cfg.LogLevel))
	if cb != nil {
		cb(cfg)
	}
	return nil
}

func (cw *ConfigWatcher) run() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := cw.reload(); err != nil {
					LogWarn("failed to reload config %s: %v", cw.path, err)
				}
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			LogWarn("config watcher error: %v", err)
		case <-cw.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying inotify
// handle.
func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
