package fetch_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/fetch"
)

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.0.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	f := fetch.New()
	h, err := f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	defer h.Close()

	require.NotNil(t, h.Body)
	data, err := io.ReadAll(h.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFetchLocalDirectory(t *testing.T) {
	dir := t.TempDir()

	f := fetch.New()
	h, err := f.Fetch(context.Background(), "file://"+dir)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, dir, h.Path)
	assert.Nil(t, h.Body)
}

func TestResolveLocalSkipsHashing(t *testing.T) {
	dir := t.TempDir()

	f := fetch.New()
	d := distfile.Distribution{URL: "file://" + dir}
	resolved, err := f.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, resolved.ContentHash)
}

func TestResolveHashesFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0.0.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	f := fetch.New()
	d := distfile.Distribution{URL: "file://" + path}
	resolved, err := f.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, resolved.ContentHash)
	assert.Len(t, resolved.ContentHash, 64)
}

func TestCachingFetcherCachesAcrossFetches(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "pkg-1.0.0.tar.gz")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello"), 0o644))

	cacheDir := t.TempDir()
	cf := fetch.NewCaching(cacheDir)

	url := "file://" + srcPath
	h1, err := cf.Fetch(context.Background(), url)
	require.NoError(t, err)
	data1, _ := io.ReadAll(h1.Body)
	h1.Close()
	assert.Equal(t, "hello", string(data1))

	require.NoError(t, os.Remove(srcPath))

	h2, err := cf.Fetch(context.Background(), url)
	require.NoError(t, err)
	defer h2.Close()
	data2, _ := io.ReadAll(h2.Body)
	assert.Equal(t, "hello", string(data2))
}
