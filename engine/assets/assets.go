package assets

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/prism/engine/core"
)

const DefaultDebounce = 100 * time.Millisecond

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeDocument
	AssetTypeBuffer
	AssetTypeImage
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeDocument:
		return "document"
	case AssetTypeBuffer:
		return "buffer"
	case AssetTypeImage:
		return "image"
	default:
		return "none"
	}
}

// AssetEvent reports that a scene asset was written or created.
type AssetEvent struct {
	Path string
	Type AssetType
}

type AssetManagerOption func(*AssetManager)

// WithDebounce sets how long a path has to stay quiet before its event is
// published.
func WithDebounce(d time.Duration) AssetManagerOption {
	return func(am *AssetManager) {
		am.debounce = d
	}
}

// AssetManager watches directory trees for changes to scene assets.
type AssetManager struct {
	debounce time.Duration
	pending  map[string]AssetType

	mutex    sync.Mutex
	isClosed bool

	fsnotify *fsnotify.Watcher
	events   chan AssetEvent
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewAssetManager(opts ...AssetManagerOption) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		debounce: DefaultDebounce,
		pending:  make(map[string]AssetType),
		fsnotify: fsWatch,
		events:   make(chan AssetEvent, 16),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(am)
	}

	am.wg.Add(1)
	go am.start()
	return am, nil
}

// Events delivers debounced asset events. It is closed by Close.
func (am *AssetManager) Events() <-chan AssetEvent {
	return am.events
}

// Errors delivers watcher errors. Errors nobody reads are dropped.
func (am *AssetManager) Errors() <-chan error {
	return am.errors
}

// Watch starts watching dir and all its sub-directories.
func (am *AssetManager) Watch(dir string) error {
	am.mutex.Lock()
	closed := am.isClosed
	am.mutex.Unlock()
	if closed {
		return errors.New("asset manager already closed")
	}
	if err := am.watchRecursive(dir, false); err != nil {
		return err
	}
	core.LogInfo("watching %s for asset changes", dir)
	return nil
}

// Unwatch stops watching dir and all its sub-directories.
func (am *AssetManager) Unwatch(dir string) error {
	return am.watchRecursive(dir, true)
}

// Close stops the watcher and closes the event channels. It is safe to call
// more than once.
func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()

	flush := time.NewTimer(am.debounce)
	flush.Stop()

	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				continue
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					if err := am.watchRecursive(e.Name, false); err != nil {
						am.reportError(err)
					}
					continue
				}
			}
			// a deleted path may have been a watched directory
			if e.Op&fsnotify.Remove != 0 {
				_ = am.fsnotify.Remove(e.Name)
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			t := DetermineAssetType(e.Name)
			if t == AssetTypeNone {
				continue
			}
			am.pending[e.Name] = t
			flush.Reset(am.debounce)

		case <-flush.C:
			am.publish()

		case err, ok := <-am.fsnotify.Errors:
			if ok {
				am.reportError(err)
			}

		case <-am.done:
			flush.Stop()
			am.fsnotify.Close()
			close(am.events)
			close(am.errors)
			return
		}
	}
}

// publish emits the pending events in path order.
func (am *AssetManager) publish() {
	paths := make([]string, 0, len(am.pending))
	for p := range am.pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		ev := AssetEvent{Path: p, Type: am.pending[p]}
		delete(am.pending, p)
		core.LogDebug("asset changed: %s (%s)", ev.Path, ev.Type)
		select {
		case am.events <- ev:
		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) reportError(err error) {
	core.LogError("asset watcher: %s", err.Error())
	select {
	case am.errors <- err:
	default:
	}
}

// watchRecursive adds or removes every directory under path.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if unWatch {
			return am.fsnotify.Remove(walkPath)
		}
		return am.fsnotify.Add(walkPath)
	})
}

func DetermineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf":
		return AssetTypeDocument
	case ".bin":
		return AssetTypeBuffer
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return AssetTypeImage
	default:
		return AssetTypeNone
	}
}
