package core

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a TOML config file whenever it changes on disk and
// hands the parsed result to a callback.
type ConfigWatcher struct {
	path     string
	onChange func(*Config)

	mutex    sync.Mutex
	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
	errors   chan error
}

func NewConfigWatcher(path string, onChange func(*Config)) (*ConfigWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsWatch.Close()
		return nil, err
	}
	return &ConfigWatcher{
		path:     abs,
		onChange: onChange,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		errors:   make(chan error, 1),
	}, nil
}

// Start watches the directory holding the config file so that saves done by
// rename are still observed.
func (cw *ConfigWatcher) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()
	if cw.isClosed {
		return errors.New("config watcher already closed")
	}
	if err := cw.fsnotify.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}
	cw.started = true
	go cw.start()
	return nil
}

// Errors returns watcher errors. The channel is buffered by one and errors
// beyond that are only logged.
func (cw *ConfigWatcher) Errors() <-chan error {
	return cw.errors
}

func (cw *ConfigWatcher) Close() error {
	cw.mutex.Lock()
	if cw.isClosed {
		cw.mutex.Unlock()
		return nil
	}
	cw.isClosed = true
	started := cw.started
	cw.mutex.Unlock()

	if !started {
		return cw.fsnotify.Close()
	}
	close(cw.done)
	<-cw.stopped
	return nil
}

func (cw *ConfigWatcher) start() {
	defer close(cw.stopped)
	for {
		select {
		case e := <-cw.fsnotify.Events:
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				cw.reload()
			}

		case e := <-cw.fsnotify.Errors:
			LogError("%s", e)
			select {
			case cw.errors <- e:
			default:
			}

		case <-cw.done:
			cw.fsnotify.Close()
			return
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfig(cw.path)
	if err != nil {
		LogWarn("config reload of %s failed: %s", cw.path, err)
		return
	}
	LogInfo("config reloaded from %s", cw.path)
	if cw.onChange != nil {
		cw.onChange(cfg)
	}
}
