package syncer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Watcher refreshes files_on_host syncs when their TOML files change on
// the core host. Events are debounced so editors that write in bursts
// trigger one refresh.
type Watcher struct {
	syncer  *Syncer
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

const watchDebounce = 2 * time.Second

// NewWatcher watches the sync directory. Returns an error when the
// directory cannot be watched; callers may treat that as non-fatal.
func NewWatcher(s *Syncer) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(s.eng.Cfg.SyncDirectory); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{syncer: s, watcher: fw, stop: make(chan struct{})}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".toml" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger := log.WithComponent("sync-watcher")
			logger.Warn().Err(err).Msg("watch error")
		case <-timerC:
			timerC = nil
			w.refreshHostSyncs()
		}
	}
}

// refreshHostSyncs recomputes pending changes for every files_on_host
// sync.
func (w *Watcher) refreshHostSyncs() {
	syncs, err := storage.ListResources[types.SyncConfig, types.SyncInfo](w.syncer.eng.Store, types.KindResourceSync)
	if err != nil {
		logger := log.WithComponent("sync-watcher")
		logger.Error().Err(err).Msg("failed to list syncs")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, sync := range syncs {
		if !sync.Config.FilesOnHost {
			continue
		}
		if err := w.syncer.RefreshSync(ctx, types.SyncUserID, sync.ID); err != nil {
			logger := log.WithComponent("sync-watcher")
			logger.Warn().Err(err).
				Str("sync", sync.Name).Msg("failed to refresh sync")
		}
	}
}
