package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/assets/gltf"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is ready to load a scene
	EngineStageInitialized
	// A scene is loaded and frames can be recorded
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Every resource has been released
	EngineStageShutdown
)

// pendingReloads bounds the asset events kept between two PollReload calls.
const pendingReloads = 32

var ErrNoScene = errors.New("no scene loaded")

// loadedScene is a scene together with the allocator owning its descriptor sets.
type loadedScene struct {
	scene *scene.Scene
	alloc *vulkan.DescriptorAllocator
}

func (l *loadedScene) release(barrier vulkan.IdleBarrier) error {
	return errors.Join(l.scene.Destroy(barrier), l.alloc.Cleanup(barrier))
}

// Engine owns the resource manager and the loaded scene, and decides what
// happens when loading fails: the scene being shown is only replaced by one
// that loaded completely.
type Engine struct {
	currentStage Stage

	cfg            *config.Config
	fs             billy.Filesystem
	device         vulkan.Device
	layouts        vulkan.SceneLayouts
	resources      *vulkan.ResourceManager
	poolSizes      vulkan.PoolSizes
	sceneTransform mgl32.Mat4
	renderer       *renderer.FrameRenderer

	docPath string
	current *loadedScene

	assetManager *assets.AssetManager
	mutex        sync.Mutex
	pending      *containers.RingQueue[assets.AssetEvent]
}

// New prepares an engine drawing with layouts on dev. Documents and images
// are read from fs.
func New(cfg *config.Config, fs billy.Filesystem, dev vulkan.Device, layouts vulkan.SceneLayouts) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	filter, err := loaders.ParseFilter(cfg.Textures.MipFilter)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	sizes, err := vulkan.PoolSizesFromConfig(cfg.Descriptors)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	t, err := math.TransformFromSlices(cfg.Scene.Translation, cfg.Scene.Rotation, cfg.Scene.Scale)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	return &Engine{
		currentStage:   EngineStageInitialized,
		cfg:            cfg,
		fs:             fs,
		device:         dev,
		layouts:        layouts,
		resources:      vulkan.NewResourceManager(dev, fs, vulkan.WithMipFilter(filter)),
		poolSizes:      sizes,
		sceneTransform: t.Matrix(),
		renderer:       renderer.NewFrameRenderer(dev.Limits()),
		pending:        containers.NewRingQueue[assets.AssetEvent](pendingReloads),
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Scene is the scene currently drawn, nil before the first successful load.
func (e *Engine) Scene() *scene.Scene {
	if e.current == nil {
		return nil
	}
	return e.current.scene
}

func (e *Engine) Resources() *vulkan.ResourceManager {
	return e.resources
}

// LoadScene opens, builds and uploads the document at path. The previous
// scene is released once the device is idle, and only if the new one
// loaded without errors.
func (e *Engine) LoadScene(path string) error {
	if e.currentStage >= EngineStageShuttingDown {
		return fmt.Errorf("load scene %s: engine is shut down", path)
	}
	next, err := e.load(path)
	if err != nil {
		return err
	}

	// without an idle device nothing can be released; the new scene is
	// left to ReleaseAll on shutdown
	barrier, err := e.resources.WaitIdle()
	if err != nil {
		return err
	}
	if e.current != nil {
		if err := e.current.release(barrier); err != nil {
			core.LogWarn("releasing scene %q: %s", e.current.scene.Name(), err.Error())
		}
	}
	e.current = next
	e.docPath = path
	e.currentStage = EngineStageRunning
	return nil
}

func (e *Engine) load(path string) (*loadedScene, error) {
	doc, err := gltf.Open(e.fs, path)
	if err != nil {
		return nil, err
	}
	g, err := scene.NewBuilder(doc, gltf.NewAccessorReader(e.fs, doc), scene.WithSceneTransform(e.sceneTransform)).
		Build(e.cfg.Scene.Index)
	if err != nil {
		return nil, err
	}

	var opts []scene.UploadOption
	if e.cfg.Textures.Anisotropy {
		opts = append(opts, scene.WithAnisotropy(e.device.Limits().MaxSamplerAnisotropy))
	}
	alloc := vulkan.NewDescriptorAllocator(e.device, e.poolSizes)
	s, err := scene.Upload(g, doc, e.resources, alloc, e.layouts, opts...)
	if err != nil {
		if barrier, werr := e.resources.WaitIdle(); werr == nil {
			_ = alloc.Cleanup(barrier)
		}
		return nil, err
	}
	return &loadedScene{scene: s, alloc: alloc}, nil
}

// Frame records the draws of the current scene into rec.
func (e *Engine) Frame(rec vulkan.CommandRecorder) (renderer.FrameStats, error) {
	if e.current == nil {
		err := fmt.Errorf("frame: %w", ErrNoScene)
		core.LogError("%s", err)
		return renderer.FrameStats{}, err
	}
	return e.renderer.Render(rec, e.current.scene)
}

// Watch reloads the current document when it, its buffers or its images
// change on disk. Changes are collected in the background and applied by
// PollReload. Watching stops when ctx is done or on Shutdown.
func (e *Engine) Watch(ctx context.Context, opts ...assets.AssetManagerOption) error {
	if e.current == nil {
		return fmt.Errorf("watch: %w", ErrNoScene)
	}
	if e.assetManager != nil {
		return nil
	}
	am, err := assets.NewAssetManager(opts...)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	dir := filepath.Join(e.fs.Root(), filepath.Dir(e.docPath))
	if err := am.Watch(dir); err != nil {
		am.Close()
		core.LogError("%s", err)
		return err
	}
	e.assetManager = am

	go func() {
		<-ctx.Done()
		am.Close()
	}()
	go func() {
		for ev := range am.Events() {
			e.enqueue(ev)
		}
	}()
	return nil
}

// enqueue keeps the newest events when the queue is full.
func (e *Engine) enqueue(ev assets.AssetEvent) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.pending.IsFull() {
		dropped, _ := e.pending.Dequeue()
		core.LogWarn("too many pending asset changes, dropping %s", dropped.Path)
	}
	_ = e.pending.Enqueue(ev)
}

func (e *Engine) drain() []assets.AssetEvent {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := make([]assets.AssetEvent, 0, e.pending.Len())
	for !e.pending.IsEmpty() {
		ev, _ := e.pending.Dequeue()
		out = append(out, ev)
	}
	return out
}

// PollReload reloads the current document if any of its assets changed
// since the last call. When the reload fails the previous scene stays in
// place and the error is returned.
func (e *Engine) PollReload() (bool, error) {
	events := e.drain()
	if e.current == nil || !e.affected(events) {
		return false, nil
	}
	core.LogInfo("reloading %s", e.docPath)
	if err := e.LoadScene(e.docPath); err != nil {
		core.LogWarn("reload of %s failed, keeping scene %q: %s", e.docPath, e.current.scene.Name(), err.Error())
		return false, err
	}
	return true, nil
}

// affected reports whether events touch the current document. Other
// documents living in the same directory are ignored.
func (e *Engine) affected(events []assets.AssetEvent) bool {
	doc := filepath.Base(e.docPath)
	for _, ev := range events {
		if ev.Type != assets.AssetTypeDocument || filepath.Base(ev.Path) == doc {
			return true
		}
	}
	return false
}

// Shutdown stops watching, waits for the device and releases everything.
func (e *Engine) Shutdown() error {
	if e.currentStage >= EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	if e.assetManager != nil {
		e.assetManager.Close()
	}
	barrier, err := e.resources.WaitIdle()
	if err != nil {
		return err
	}
	var errs []error
	if e.current != nil {
		errs = append(errs, e.current.release(barrier))
		e.current = nil
	}
	errs = append(errs, e.resources.ReleaseAll(barrier))
	if err := errors.Join(errs...); err != nil {
		core.LogError("%s", err)
		return err
	}
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down after %d frames", e.renderer.Frames())
	return nil
}
