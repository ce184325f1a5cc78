package projectparse

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/pylockerr"
)

// parseSourceDistribution extracts a source archive (or, for a local
// directory URL, simply opens it in place) and hands the resulting
// directory to the PKG-INFO / pyproject.toml / setup.py decision tree in
// parseProjectDirectory.
func (p *Parser) parseSourceDistribution(ctx context.Context, d distfile.Distribution) (*Project, error) {
	versionHint := versionHintFromFilename(d)

	h, err := p.Fetch.Fetch(ctx, d.URL)
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "fetching source distribution", err)
	}
	defer h.Close()

	if h.Path != "" {
		// A file:// URL naming a directory: this IS the project root.
		return p.parseProjectDirectory(ctx, d, h.Path, versionHint)
	}

	data, err := io.ReadAll(h.Body)
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "reading archive", err)
	}

	tmp, err := os.MkdirTemp("", "pylock-extract-*")
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "creating extraction directory", err)
	}

	filename := d.Filename()
	switch {
	case strings.HasSuffix(filename, ".zip"):
		err = extractZip(data, tmp)
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		err = extractTarGz(data, tmp)
	default:
		return nil, pylockerr.AsParseError(filename, "unsupported archive extension", nil)
	}
	if err != nil {
		// preserved on disk for diagnostics, per spec.md §4.2
		return nil, pylockerr.AsParseError(filename, fmt.Sprintf("extracting archive (left at %s)", tmp), err)
	}

	root, err := descendWrappingDirectory(tmp)
	if err != nil {
		return nil, pylockerr.AsParseError(filename, "locating project root in archive", err)
	}

	project, err := p.parseProjectDirectory(ctx, d, root, versionHint)
	if err != nil {
		return nil, err
	}
	_ = os.RemoveAll(tmp) // cleanup only on success; left in place on error for diagnosis
	return project, nil
}

func descendWrappingDirectory(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		hasSetupOrPyproject := false
		for _, name := range []string{"setup.py", "pyproject.toml"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				hasSetupOrPyproject = true
				break
			}
		}
		if !hasSetupOrPyproject {
			return filepath.Join(dir, entries[0].Name()), nil
		}
	}
	return dir, nil
}

func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			rc.Close()
			return err
		}
		out.Close()
		rc.Close()
	}
	return nil
}

func extractTarGz(data []byte, dest string) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
