package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/fieldsync/internal/core/ports/driving"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// Spool subdirectories.
const (
	processedDir = "processed"
	failedDir    = "failed"
)

// spool consumes event files dropped into a directory.
//
// Producers write to a temporary name and rename to *.json once complete;
// only *.json files are read. Each file is dispatched and then moved to
// processed/ or, if any event failed, to failed/ with a .err companion.
type spool struct {
	dir  string
	sync driving.FieldSync

	// done is called after each file, for tests. May be nil.
	done func(name string, err error)
}

func newSpool(dir string, sync driving.FieldSync) *spool {
	return &spool{dir: dir, sync: sync}
}

// prepare creates the spool directories.
func (s *spool) prepare() error {
	for _, d := range []string{s.dir, filepath.Join(s.dir, processedDir), filepath.Join(s.dir, failedDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return fmt.Errorf("failed to create spool directory: %w", err)
		}
	}
	return nil
}

// Run drains existing files, then handles new ones until ctx is done.
func (s *spool) Run(ctx context.Context) error {
	if err := s.prepare(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	// Files that arrived before the watch started.
	if err := s.drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if isSpoolFile(event.Name) {
				s.process(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(err, "spool watcher error")
		}
	}
}

// drain processes every pending file in name order.
func (s *spool) drain(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read spool: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isSpoolFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		s.process(ctx, filepath.Join(s.dir, name))
	}
	return nil
}

// process dispatches one file. A file already moved by an earlier event is
// skipped.
func (s *spool) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}

	name := filepath.Base(path)
	if err == nil {
		err = s.dispatch(ctx, data)
	}

	if err != nil {
		logger.Error(err, "spool file %s failed", name)
		s.move(path, failedDir)
		errPath := filepath.Join(s.dir, failedDir, name+".err")
		if werr := os.WriteFile(errPath, []byte(err.Error()+"\n"), 0600); werr != nil {
			logger.Warn("failed to write %s: %v", errPath, werr)
		}
	} else {
		logger.Debug("spool file %s applied", name)
		s.move(path, processedDir)
	}

	if s.done != nil {
		s.done(name, err)
	}
}

func (s *spool) dispatch(ctx context.Context, data []byte) error {
	events, err := decodeEvents(data)
	if err != nil {
		return err
	}
	var errs []string
	for i, ev := range events {
		if err := s.sync.Dispatch(ctx, ev); err != nil {
			errs = append(errs, fmt.Sprintf("event %d: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d event(s) failed: %s", len(errs), len(events), strings.Join(errs, "; "))
	}
	return nil
}

func (s *spool) move(path, sub string) {
	target := filepath.Join(s.dir, sub, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Warn("failed to move %s to %s: %v", path, sub, err)
	}
}

func isSpoolFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}
