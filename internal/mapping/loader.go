package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

//go:embed mapping.yaml
var defaultMapping []byte

// Default returns the mapping table compiled into the binary.
func Default() *Table {
	table, err := Parse(defaultMapping)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect.
		panic(fmt.Sprintf("embedded mapping table invalid: %v", err))
	}
	return table
}

// Loader serves a mapping table from a YAML file and can hot-reload it when
// the file changes, so operators can roll out new mappings without a restart.
// Loader implements the same CanonicalType/Lookup surface as Table; the table
// it serves is swapped atomically under a read-write mutex.
type Loader struct {
	path string

	mu      sync.RWMutex
	current *Table
	watcher *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	table, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = table
	return l, nil
}

// Table returns the current mapping table.
func (l *Loader) Table() *Table {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// CanonicalType delegates to the current table.
func (l *Loader) CanonicalType(source, rawType string) string {
	return l.Table().CanonicalType(source, rawType)
}

// Lookup delegates to the current table.
func (l *Loader) Lookup(source, rawType string) (string, bool) {
	return l.Table().Lookup(source, rawType)
}

// Watch starts a background goroutine that reloads the mapping file on change.
// A file that fails to parse is logged and skipped; the previous table stays
// in effect. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mapping watcher: %w", err)
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("mapping watcher add %s: %w", l.path, err)
	}
	l.watcher = watcher

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				table, err := l.load()
				if err != nil {
					log.Warn().Err(err).Str("path", l.path).Msg("Mapping reload failed, keeping previous table")
					continue
				}
				l.mu.Lock()
				l.current = table
				l.mu.Unlock()
				log.Info().Str("path", l.path).Msg("Reloaded mapping table")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Mapping watcher error")

			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func (l *Loader) load() (*Table, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}
