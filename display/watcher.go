package worldline

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	We "github.com/maroda/worldline/engine"
)

const reloadDebounce = 200 * time.Millisecond

// SceneWatcher reloads a scene file when it changes on disk.
// The directory is watched so editors that replace the file are still seen.
type SceneWatcher struct {
	Path     string
	OnReload func(*We.Scene)

	done    chan struct{}
	started bool
	watcher *fsnotify.Watcher
}

func NewSceneWatcher(path string, onReload func(*We.Scene)) (*SceneWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SceneWatcher{
		Path:     abs,
		OnReload: onReload,
		done:     make(chan struct{}),
		watcher:  fw,
	}, nil
}

// Start begins watching the scene's directory
func (sw *SceneWatcher) Start() error {
	if err := sw.watcher.Add(filepath.Dir(sw.Path)); err != nil {
		return err
	}
	sw.started = true
	go sw.loop()
	return nil
}

// Stop closes the watcher and waits for the loop to exit
func (sw *SceneWatcher) Stop() {
	sw.watcher.Close()
	if sw.started {
		<-sw.done
	}
}

func (sw *SceneWatcher) loop() {
	defer close(sw.done)

	var pending time.Time
	ticker := time.NewTicker(reloadDebounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < reloadDebounce {
				continue
			}
			pending = time.Time{}
			sw.reload()

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Scene watcher error", slog.Any("Error", err))
		}
	}
}

func (sw *SceneWatcher) reload() {
	scene, err := We.LoadSceneFile(sw.Path)
	if err != nil {
		// keep the current scene until the file is valid again
		slog.Error("Scene reload failed", slog.String("file", sw.Path), slog.Any("Error", err))
		return
	}
	slog.Info("Scene file changed", slog.String("file", sw.Path))
	sw.OnReload(scene)
}
