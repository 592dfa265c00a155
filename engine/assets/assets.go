package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/assets/loaders"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/core"
	"github.com/pa-tiq/PatiqVulkanEngine/engine/resources"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	Path       string
	Type       resources.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes shader and model files under the watched directories
// and reports files that change on disk.
type AssetManager struct {
	assets  map[string]AssetInfo
	byName  map[string]string
	loaders map[resources.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
	changes  chan AssetInfo
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		byName:   make(map[string]string),
		loaders:  make(map[resources.ResourceType]Loader),
		fsnotify: fsWatch,
		changes:  make(chan AssetInfo, 32),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes and watches every directory in dirs, recursively.
func (am *AssetManager) Initialize(dirs ...string) error {
	am.registerLoader(resources.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(resources.ResourceTypeModel, &loaders.ModelLoader{})

	for _, dir := range dirs {
		if err := am.addRecursive(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}

	am.started = true
	go am.start()
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Path resolves an indexed file name, e.g. "flat_vase.obj", to its path.
func (am *AssetManager) Path(filename string) (string, error) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	path, ok := am.byName[filename]
	if !ok {
		return "", errors.Wrapf(ErrAssetNotFound, "%s", filename)
	}
	return path, nil
}

// LoadAsset loads an indexed file with the loader registered for its type.
func (am *AssetManager) LoadAsset(filename string, params interface{}) (*resources.Resource, error) {
	path, err := am.Path(filename)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	asset := am.assets[path]
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	am.mutex.Unlock()

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, errors.Newf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Load(path, params)
}

// LoadShader returns the SPIR-V words of a compiled stage, e.g. "simple_shader.vert".
func (am *AssetManager) LoadShader(name string) ([]uint32, error) {
	res, err := am.LoadAsset(name+".spv", nil)
	if err != nil {
		return nil, err
	}
	code, ok := res.Data.([]uint32)
	if !ok {
		return nil, errors.Newf("%s is not a shader", name)
	}
	return code, nil
}

func (am *AssetManager) UnloadAsset(asset *resources.Resource) error {
	if loader, ok := am.loaders[asset.Type]; ok {
		return loader.Unload(asset)
	}
	return nil
}

// Changes delivers assets created or rewritten after Initialize. Events are
// dropped while the channel is full.
func (am *AssetManager) Changes() <-chan AssetInfo {
	return am.changes
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	// Initialize may have failed before the watch loop was started.
	if !am.started {
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(e.Name); ok {
					select {
					case am.changes <- info:
					default:
						core.LogWarn("asset change dropped: %s", info.Path)
					}
				}
			}
			// Can't stat a deleted path, so try to drop it from both the
			// index and the watch list.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files it finds.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	assetType := determineAssetType(path)
	if assetType == resources.ResourceTypeNone {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := AssetInfo{
		Path: path,
		Type: assetType,
	}
	am.assets[path] = info
	am.byName[filepath.Base(path)] = path
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
	if am.byName[filepath.Base(path)] == path {
		delete(am.byName, filepath.Base(path))
	}
}

func determineAssetType(path string) resources.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return resources.ResourceTypeShader
	case ".obj":
		return resources.ResourceTypeModel
	case ".mtl":
		return resources.ResourceTypeMaterialLibrary
	default:
		return resources.ResourceTypeNone
	}
}
