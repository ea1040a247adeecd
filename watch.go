package hatsetup

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reports changes to the daemon's configuration directory and the
// boot configuration, so displays can refresh without polling. Bursts of
// events, as produced by editors and package upgrades, are collapsed into a
// single notification.
type Watcher struct {
	fs      *fsnotify.Watcher
	Changes chan string
	done    chan struct{}
}

// NewWatcher starts watching the given configuration. Directories that do
// not exist yet are skipped, a restart picks them up once they are created.
func NewWatcher(cfg *Config) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:      fs,
		Changes: make(chan string, 1),
		done:    make(chan struct{}),
	}
	for _, dir := range []string{cfg.ConfigDir, filepath.Join(cfg.ConfigDir, activeDirName), filepath.Dir(cfg.BootConfig)} {
		if err := fs.Add(dir); err != nil {
			log.Printf("not watching %s: %v", dir, err)
		}
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending string
	)
	fire := make(chan struct{}, 1)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = event.Name
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() { fire <- struct{}{} })
			} else {
				timer.Reset(watchDebounce)
			}
		case <-fire:
			timer = nil
			select {
			case w.Changes <- pending:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher. The Changes channel stops delivering afterwards.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
