package intake

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"home-voice/config"
	"home-voice/internal/application"
)

const processedSuffix = ".processed"

// Inbox polls a directory for .txt files. Each file holds one utterance and
// is renamed with a .processed suffix once read.
type Inbox struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
	seen     map[string]bool
}

func NewInbox(cfg config.InboxConfig, logger *slog.Logger) *Inbox {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Inbox{
		dir:      cfg.Dir,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]bool),
	}
}

func (i *Inbox) Name() string {
	return "inbox"
}

func (i *Inbox) Start(_ context.Context) error {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox dir: %w", err)
	}
	return nil
}

func (i *Inbox) Stop() error {
	return nil
}

func (i *Inbox) Next(ctx context.Context) (application.Request, error) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		req, ok, err := i.poll()
		if err != nil {
			return application.Request{}, err
		}
		if ok {
			return req, nil
		}

		select {
		case <-ctx.Done():
			return application.Request{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (i *Inbox) poll() (application.Request, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return application.Request{}, false, fmt.Errorf("reading inbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".txt" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	i.forgetMissing(names)

	for _, name := range names {
		path := filepath.Join(i.dir, name)
		if i.seen[path] {
			// read earlier but the rename failed; try again, never re-read
			if err := os.Rename(path, path+processedSuffix); err == nil {
				delete(i.seen, path)
			}
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return application.Request{}, false, fmt.Errorf("reading %s: %w", path, err)
		}
		i.seen[path] = true

		if err := os.Rename(path, path+processedSuffix); err != nil {
			i.logger.Warn("marking inbox file processed", "path", path, "error", err)
		} else {
			delete(i.seen, path)
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			i.logger.Debug("skipping empty inbox file", "path", path)
			continue
		}

		return application.Request{
			ID:     uuid.NewString(),
			Text:   text,
			Origin: "inbox",
		}, true, nil
	}

	return application.Request{}, false, nil
}

// forgetMissing drops seen entries whose file is no longer in the inbox.
func (i *Inbox) forgetMissing(names []string) {
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[filepath.Join(i.dir, name)] = true
	}
	for path := range i.seen {
		if !present[path] {
			delete(i.seen, path)
		}
	}
}
