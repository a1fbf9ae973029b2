package intake

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-voice/config"
)

func TestInbox_SeenEntriesDoNotAccumulate(t *testing.T) {
	dir := t.TempDir()
	inbox := NewInbox(config.InboxConfig{Dir: dir}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	gone := filepath.Join(dir, "gone.txt")
	stuck := filepath.Join(dir, "stuck.txt")
	require.NoError(t, os.WriteFile(stuck, []byte("already handled"), 0o644))
	inbox.seen[gone] = true
	inbox.seen[stuck] = true

	_, ok, err := inbox.poll()
	require.NoError(t, err)
	assert.False(t, ok, "a file read before must not be queued again")

	assert.Empty(t, inbox.seen)
	assert.FileExists(t, stuck+processedSuffix)
	assert.NoFileExists(t, stuck)
}
