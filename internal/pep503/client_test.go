package pep503_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixpy/pylock/internal/pep503"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "friendly-bard", pep503.Normalize("Friendly-Bard"))
	assert.Equal(t, "friendly-bard", pep503.Normalize("Friendly_Bard"))
	assert.Equal(t, "friendly-bard", pep503.Normalize("FRIENDLY--BARD"))
	assert.Equal(t, "friendly-bard", pep503.Normalize("friendly.bard"))
}

func TestListProjectFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><body>
			<a href="/files/requests-2.31.0.tar.gz" data-requires-python=">=3.7">requests-2.31.0.tar.gz</a>
			<a href="/files/requests-1.0.0.tar.gz" data-requires-python=">=3.11">requests-1.0.0.tar.gz</a>
		</body></html>`))
	}))
	defer srv.Close()

	c := pep503.Client{BaseURL: srv.URL + "/simple/"}
	links, err := c.ListProjectFiles(context.Background(), "Requests")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Contains(t, links[0].HRef, "requests-2.31.0.tar.gz")
}

func TestGetVerifiesChecksum(t *testing.T) {
	content := []byte("package contents")
	sum := sha256.Sum256(content)
	hexSum := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	c := pep503.Client{}
	link := pep503.Link{HRef: srv.URL + "/pkg.tar.gz#sha256=" + hexSum}
	got, err := c.Get(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGetRejectsBadChecksum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("package contents"))
	}))
	defer srv.Close()

	c := pep503.Client{}
	link := pep503.Link{HRef: srv.URL + "/pkg.tar.gz#sha256=deadbeef"}
	_, err := c.Get(context.Background(), link)
	assert.Error(t, err)
}
