package campaign

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Library is a directory of campaign YAML files.
type Library struct {
	dir    string
	logger zerolog.Logger
}

func NewLibrary(dir string, logger zerolog.Logger) *Library {
	return &Library{
		dir:    dir,
		logger: logger.With().Str("component", "campaign-library").Logger(),
	}
}

// Entry is one selectable campaign file.
type Entry struct {
	Name string // filename stem, used as the campaign key
	Path string
}

// List returns the campaign files in the library, sorted by name. A
// missing directory is an empty library, not an error.
func (l *Library) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	more, err := filepath.Glob(filepath.Join(l.dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	matches = append(matches, more...)

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		entries = append(entries, Entry{
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
			Path: path,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Save writes a campaign YAML document into the library, creating the
// directory if needed. Returns the written path.
func (l *Library) Save(name string, raw []byte) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, sanitizeName(name)+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeName(name string) string {
	r := strings.NewReplacer(" ", "_", ":", "", "'", "", "/", "-")
	return r.Replace(name)
}

// Watch notifies onChange whenever a campaign file is created, written,
// or removed, until ctx is cancelled. It blocks; run it on its own
// goroutine.
func (l *Library) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("library changed")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("watch error")
		}
	}
}
