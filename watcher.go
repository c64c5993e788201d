// watcher.go: Polling watcher for file-backed configuration
//
// Polling keeps the watcher portable: every PollInterval the watched files
// are stat'ed and compared with the last observed modification time and size.
//
//	w, _ := dynconf.NewWatcher(dynconf.WatcherConfig{PollInterval: 2 * time.Second})
//	_ = manager.WatchStorage(w, nil)
//	_ = w.Start()
//	defer w.Stop()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"go.uber.org/zap"
)

// Watcher defaults
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxWatchedFiles = 100
)

// ChangeEvent describes a change of a watched file.
type ChangeEvent struct {
	Path     string
	ModTime  time.Time
	Size     int64
	IsCreate bool
	IsDelete bool
	IsModify bool
}

// ChangeCallback receives change events on the watcher goroutine.
type ChangeCallback func(event ChangeEvent)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// PollInterval is how often files are checked. Zero uses DefaultPollInterval.
	PollInterval time.Duration

	// MaxWatchedFiles limits the number of watched files. Zero uses DefaultMaxWatchedFiles.
	MaxWatchedFiles int

	// ErrorHandler receives stat failures other than a missing file.
	// Without it failures are logged at Warn.
	ErrorHandler func(err error, path string)

	Logger *zap.Logger
}

type fileStat struct {
	modTime time.Time
	size    int64
	exists  bool
}

type watchedFile struct {
	path     string
	callback ChangeCallback
	lastStat fileStat
}

// Watcher polls files and reports their changes.
type Watcher struct {
	config WatcherConfig

	files   map[string]*watchedFile
	filesMu sync.RWMutex

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewWatcher validates config and returns a stopped watcher.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.PollInterval < 0 {
		return nil, invalidConfigError("poll interval cannot be negative: %v", config.PollInterval)
	}
	if config.MaxWatchedFiles < 0 {
		return nil, invalidConfigError("max watched files cannot be negative: %d", config.MaxWatchedFiles)
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxWatchedFiles == 0 {
		config.MaxWatchedFiles = DefaultMaxWatchedFiles
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Watcher{
		config: config,
		files:  make(map[string]*watchedFile),
	}, nil
}

// Watch registers callback for path. Watching a path again replaces its
// callback. The file does not need to exist yet; its creation is reported.
func (w *Watcher) Watch(path string, callback ChangeCallback) error {
	if callback == nil {
		return invalidConfigError("callback cannot be nil")
	}
	if path == "" {
		return invalidConfigError("watched path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid watched path '%s'", path))
	}

	baseline, err := statFile(absPath)
	if err != nil {
		return errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("failed to stat '%s'", absPath))
	}

	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	if _, exists := w.files[absPath]; !exists && len(w.files) >= w.config.MaxWatchedFiles {
		return invalidConfigError("cannot watch more than %d files", w.config.MaxWatchedFiles)
	}
	w.files[absPath] = &watchedFile{path: absPath, callback: callback, lastStat: baseline}

	w.config.Logger.Debug("watching file", zap.String("path", absPath))
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("invalid watched path '%s'", path))
	}

	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	delete(w.files, absPath)
	return nil
}

// WatchedFiles returns the number of watched files.
func (w *Watcher) WatchedFiles() int {
	w.filesMu.RLock()
	defer w.filesMu.RUnlock()
	return len(w.files)
}

// Start begins polling in a background goroutine.
func (w *Watcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeInvalidConfig, "watcher is already running")
	}
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	go w.watchLoop(w.stopCh, w.stoppedCh)
	return nil
}

// Stop stops polling and waits for the loop to exit.
func (w *Watcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeInvalidConfig, "watcher is not running")
	}
	close(w.stopCh)
	<-w.stoppedCh
	return nil
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// Close stops the watcher if it is running.
func (w *Watcher) Close() error {
	if !w.IsRunning() {
		return nil
	}
	return w.Stop()
}

func (w *Watcher) watchLoop(stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			w.pollFiles()
		}
	}
}

// pollFiles checks every watched file once.
func (w *Watcher) pollFiles() {
	w.filesMu.RLock()
	files := make([]*watchedFile, 0, len(w.files))
	for _, wf := range w.files {
		files = append(files, wf)
	}
	w.filesMu.RUnlock()

	for _, wf := range files {
		w.checkFile(wf)
	}
}

func (w *Watcher) checkFile(wf *watchedFile) {
	current, err := statFile(wf.path)
	if err != nil {
		w.handleError(errors.Wrap(err, ErrCodeStorage, fmt.Sprintf("failed to stat '%s'", wf.path)), wf.path)
		return
	}

	event := ChangeEvent{Path: wf.path, ModTime: current.modTime, Size: current.size}
	switch {
	case wf.lastStat.exists && !current.exists:
		event.IsDelete = true
	case !wf.lastStat.exists && current.exists:
		event.IsCreate = true
	case current.exists && (!current.modTime.Equal(wf.lastStat.modTime) || current.size != wf.lastStat.size):
		event.IsModify = true
	default:
		return
	}
	wf.lastStat = current

	w.config.Logger.Debug("watched file changed",
		zap.String("path", event.Path),
		zap.Bool("create", event.IsCreate),
		zap.Bool("delete", event.IsDelete),
		zap.Bool("modify", event.IsModify))
	wf.callback(event)
}

func (w *Watcher) handleError(err error, path string) {
	if w.config.ErrorHandler != nil {
		w.config.ErrorHandler(err, path)
		return
	}
	w.config.Logger.Warn("watched file check failed", zap.String("path", path), zap.Error(err))
}

// statFile reports a missing file as a zero stat, not an error.
func statFile(path string) (fileStat, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fileStat{}, nil
	}
	if err != nil {
		return fileStat{}, err
	}
	return fileStat{modTime: info.ModTime(), size: info.Size(), exists: true}, nil
}
