package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure Watcher implements the interface.
var _ driven.SourceWatcher = (*Watcher)(nil)

// DefaultDebounce is how long the inbox must stay quiet before a change is reported.
const DefaultDebounce = 2 * time.Second

// Watcher reports changes to the documents of an inbox.
type Watcher struct {
	root     string
	ext      string
	debounce time.Duration
	log      logrus.FieldLogger
}

// Watcher returns a watcher over the connector's inbox.
func (c *Connector) Watcher(debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     c.root,
		ext:      c.ext,
		debounce: debounce,
		log:      c.log.WithField("watch", c.root),
	}
}

// Watch follows the inbox and its owner directories. Owner directories
// created while watching are followed as well.
func (w *Watcher) Watch(ctx context.Context, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			if err := fw.Add(filepath.Join(w.root, e.Name())); err != nil {
				return fmt.Errorf("watch owner %s: %w", e.Name(), err)
			}
		}
	}
	w.log.Debug("watching inbox")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.isOwnerDir(ev) {
				if err := fw.Add(ev.Name); err != nil {
					w.log.WithError(err).Warn("cannot watch new owner directory")
				}
				timer.Reset(w.debounce)
				continue
			}
			if w.handleEvent(ev) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				timer.Reset(w.debounce)
			}
			w.log.WithError(err).Warn("watch error")

		case <-timer.C:
			onChange()
		}
	}
}

// isOwnerDir reports a new owner directory directly under the inbox.
func (w *Watcher) isOwnerDir(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) || filepath.Dir(ev.Name) != filepath.Clean(w.root) || hidden(filepath.Base(ev.Name)) {
		return false
	}
	info, err := os.Stat(ev.Name)
	return err == nil && info.IsDir()
}

// handleEvent reports whether ev changes the published documents.
// Chmod, hidden files, directories and other extensions are ignored;
// an edit of the owner list counts.
func (w *Watcher) handleEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if hidden(name) {
		return false
	}
	if name == OwnersFile && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
		return true
	}
	if filepath.Ext(name) != w.ext {
		return false
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return false
		}
	}
	return true
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
