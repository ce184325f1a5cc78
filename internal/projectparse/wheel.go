package projectparse

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nixpy/pylock/internal/distfile"
	"github.com/nixpy/pylock/internal/metadata"
	"github.com/nixpy/pylock/internal/pep440"
	"github.com/nixpy/pylock/internal/pep508"
	"github.com/nixpy/pylock/internal/pylockerr"
)

// parseWheel reads METADATA, preferring the PEP 658 ".metadata" sidecar
// file over downloading the whole wheel when the URL is remote.
func (p *Parser) parseWheel(ctx context.Context, d distfile.Distribution) (*Project, error) {
	if !d.Local() {
		if h, err := p.Fetch.Fetch(ctx, d.URL+".metadata"); err == nil {
			defer h.Close()
			return projectFromMetadataReader(d, FormatWheel, h.Body)
		}
	}

	h, err := p.Fetch.Fetch(ctx, d.URL)
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "fetching wheel", err)
	}
	defer h.Close()

	var r io.ReaderAt
	var size int64
	if h.Body != nil {
		data, err := io.ReadAll(h.Body)
		if err != nil {
			return nil, pylockerr.AsParseError(d.Filename(), "reading wheel", err)
		}
		r = bytes.NewReader(data)
		size = int64(len(data))
	} else {
		return nil, pylockerr.AsParseError(d.Filename(), "wheel fetch yielded a directory, not bytes", nil)
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "opening wheel as zip", err)
	}

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			rc, err := f.Open()
			if err != nil {
				return nil, pylockerr.AsParseError(d.Filename(), "opening METADATA entry", err)
			}
			defer rc.Close()
			return projectFromMetadataReader(d, FormatWheel, rc)
		}
	}
	return nil, pylockerr.AsParseError(d.Filename(), "no *.dist-info/METADATA entry found in wheel", nil)
}

func projectFromMetadataReader(d distfile.Distribution, format Format, r io.Reader) (*Project, error) {
	m, err := metadata.Parse(r)
	if err != nil {
		return nil, err
	}
	return projectFromMetadata(d, format, m)
}

func projectFromMetadata(d distfile.Distribution, format Format, m *metadata.Metadata) (*Project, error) {
	if m.Name == "" {
		return nil, pylockerr.AsParseError(d.Filename(), "no Name field in metadata", nil)
	}
	if m.Version == "" {
		return nil, pylockerr.AsParseError(d.Filename(), "no Version field in metadata", nil)
	}
	ver, err := pep440.ParseVersion(m.Version)
	if err != nil {
		return nil, pylockerr.AsParseError(d.Filename(), "invalid Version field", err)
	}

	var reqs []pep508.Requirement
	for _, raw := range m.RequiresDist {
		r, err := pep508.Parse(raw)
		if err != nil {
			return nil, pylockerr.AsParseError(d.Filename(), fmt.Sprintf("invalid Requires-Dist %q", raw), err)
		}
		r.Name = Canonicalize(r.Name)
		reqs = append(reqs, *r)
	}

	var reqPython pep440.Specifier
	if m.RequiresPython != "" {
		reqPython, err = pep440.ParseSpecifier(m.RequiresPython)
		if err != nil {
			return nil, pylockerr.AsParseError(d.Filename(), "invalid Requires-Python", err)
		}
	}

	return &Project{
		Name:         Canonicalize(m.Name),
		Version:      ver,
		Format:       format,
		ReqPython:    reqPython,
		Distribution: d,
		Requirements: reqs,
	}, nil
}
