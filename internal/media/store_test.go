package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blango/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutDelete(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/media")
	ctx := context.Background()

	key := RenditionKey("hero/7/abc", RenditionThumbnail)
	require.NoError(t, store.Put(ctx, key, strings.NewReader("webp"), 4, "image/webp"))

	data, err := os.ReadFile(filepath.Join(root, "hero", "7", "abc", "thumbnail.webp"))
	require.NoError(t, err)
	assert.Equal(t, "webp", string(data))
	assert.Equal(t, "/media/hero/7/abc/thumbnail.webp", store.URL(key))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is not an error")
}

func TestLocalStoreStaysInRoot(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/media/")
	require.NoError(t, store.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), 1, "text/plain"))

	_, err := os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)
	assert.Error(t, store.Put(context.Background(), "", strings.NewReader("x"), 1, "text/plain"))
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New(context.Background(), &config.Config{MediaBackend: "local", MediaRoot: t.TempDir(), MediaURL: "/m/"})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), &config.Config{MediaBackend: "ftp"})
	assert.Error(t, err)
}
