// Package export writes captured history to daily markdown notes, one
// file per calendar day, so the history can be browsed and searched from
// a plain notes directory.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clipvault/internal/logger"
	"clipvault/internal/storage"
	"clipvault/pkg/types"
)

// Source is the slice of the clipboard service the exporter needs.
type Source interface {
	Query(ctx context.Context, filter storage.Filter) ([]*types.Entry, error)
	HandleExternalChange(ctx context.Context)
}

// Exporter appends newly captured entries to markdown notes on a timer.
type Exporter struct {
	source Source
	ticker *time.Ticker
	done   chan struct{}
	log    *logger.Logger

	mu         sync.RWMutex // protects dir and lastExport
	dir        string
	lastExport time.Time
}

type Config struct {
	Dir      string
	Interval time.Duration
}

func New(source Source, config Config, log *logger.Logger) (*Exporter, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("export interval must be positive, got %v", config.Interval)
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	return &Exporter{
		source:     source,
		dir:        config.Dir,
		ticker:     time.NewTicker(config.Interval),
		done:       make(chan struct{}),
		lastExport: time.Now(),
		log:        log,
	}, nil
}

// UpdateDir changes the export directory while the exporter is running.
func (e *Exporter) UpdateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.dir = dir
	return nil
}

// UpdateInterval changes the export cadence while the exporter is running.
func (e *Exporter) UpdateInterval(interval time.Duration) {
	if interval <= 0 {
		e.log.Warn().Dur("interval", interval).Msg("ignoring non-positive export interval")
		return
	}
	e.ticker.Reset(interval)
}

func (e *Exporter) Start(ctx context.Context) error {
	e.log.Info().Str("dir", e.dir).Msg("starting markdown export")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-e.ticker.C:
				if err := e.Export(ctx); err != nil {
					e.log.Error().Err(err).Msg("export cycle failed")
				}
			}
		}
	}()

	return nil
}

func (e *Exporter) Stop() {
	e.ticker.Stop()
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Export writes every entry captured since the previous cycle, then lets
// the service re-publish its view. Files are grouped by capture date and
// appended in capture order.
func (e *Exporter) Export(ctx context.Context) error {
	e.mu.RLock()
	dir := e.dir
	since := e.lastExport
	e.mu.RUnlock()

	mark := time.Now()
	entries, err := e.source.Query(ctx, storage.Filter{Since: since})
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	// Query returns newest first; write oldest first so notes read
	// chronologically.
	for i := len(entries) - 1; i >= 0; i-- {
		if err := e.writeEntry(dir, entries[i]); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.lastExport = mark
	e.mu.Unlock()

	e.log.Debug().Int("entries", len(entries)).Msg("export cycle complete")
	e.source.HandleExternalChange(ctx)
	return nil
}

func (e *Exporter) writeEntry(dir string, entry *types.Entry) error {
	body, err := e.renderBody(dir, entry)
	if err != nil {
		return err
	}
	if body == "" {
		return nil
	}

	section := fmt.Sprintf("\n## %s\nsource: %s\nkind: %s\n\n%s\n",
		entry.CreatedAt.Format("15:04:05"),
		entry.SourceAppName,
		entry.Kind,
		body)

	path := filepath.Join(dir, entry.CreatedAt.Format("2006-01-02")+".md")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		heading := fmt.Sprintf("# %s\n", entry.CreatedAt.Format("2006-01-02"))
		return os.WriteFile(path, []byte(heading+section), 0o644)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening note: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(section); err != nil {
		return fmt.Errorf("appending to note: %w", err)
	}
	return nil
}

// renderBody produces the markdown body for an entry. Images are written
// into an assets directory and referenced by relative link.
func (e *Exporter) renderBody(dir string, entry *types.Entry) (string, error) {
	switch entry.Kind {
	case types.KindText:
		return entry.TextContent, nil
	case types.KindURL:
		return fmt.Sprintf("<%s>", entry.URLString), nil
	case types.KindImage:
		assetsDir := filepath.Join(dir, "assets")
		if err := os.MkdirAll(assetsDir, 0o755); err != nil {
			return "", fmt.Errorf("creating assets directory: %w", err)
		}
		name := fmt.Sprintf("%s-%s.jpg", entry.CreatedAt.Format("20060102-150405"), entry.ID)
		if err := os.WriteFile(filepath.Join(assetsDir, name), entry.ImageData, 0o644); err != nil {
			return "", fmt.Errorf("writing image asset: %w", err)
		}
		return fmt.Sprintf("![%s](assets/%s)", name, name), nil
	default:
		return "", nil
	}
}
