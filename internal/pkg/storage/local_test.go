package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutNewNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutNew(ctx, "voice/1_2/a.webm", strings.NewReader("first"), 5, "audio/webm"))

	err = s.PutNew(ctx, "voice/1_2/a.webm", strings.NewReader("second"), 6, "audio/webm")
	assert.ErrorIs(t, err, ErrObjectExists)

	b, err := os.ReadFile(filepath.Join(dir, "voice", "1_2", "a.webm"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))

	assert.Equal(t, "/uploads/voice/1_2/a.webm", s.URL("voice/1_2/a.webm"))
}

func TestLocalStore_PathTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "root"), "")
	require.NoError(t, err)

	require.NoError(t, s.PutNew(context.Background(), "../../escape.txt", strings.NewReader("x"), 1, ""))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "root", "escape.txt"))
	assert.NoError(t, err)
}

func TestLocalStore_Delete(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutNew(ctx, "a.txt", strings.NewReader("x"), 1, ""))
	require.NoError(t, s.Delete(ctx, "a.txt"))
	require.NoError(t, s.Delete(ctx, "a.txt"))
	require.NoError(t, s.PutNew(ctx, "a.txt", strings.NewReader("y"), 1, ""))
}
