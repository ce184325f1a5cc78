// Package pep503 implements PEP 503 -- the Simple Repository API -- the
// HTML index format that index.SimpleIndex crawls to discover
// distribution files for a project.
package pep503

import (
	"bytes"
	"context"
	"crypto/md5"  //nolint:gosec // checksum kind is dictated by the URL fragment, not chosen here
	"crypto/sha1" //nolint:gosec // see above
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nixpy/pylock/internal/pep440"
)

// Client crawls a PEP 503 simple index.
type Client struct {
	BaseURL       string
	HTTPClient    *http.Client
	UserAgent     string
	PythonVersion *pep440.Version // if set, data-requires-python filters ListProjectFiles
}

// PyPIBaseURL is the canonical public index.
const PyPIBaseURL = "https://pypi.org/simple/"

func (c *Client) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = PyPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/nixpy/pylock/internal/pep503"
	}
}

// HTTPError is raised for any non-200 response.
type HTTPError struct {
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("HTTP %s", e.Status) }

func (c Client) get(ctx context.Context, requestURL string) (loc *url.URL, body []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("GET %q: %w", requestURL, err)
		}
	}()
	c.fillDefaults()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode}
	}

	if err := verifyChecksum(requestURL, content); err != nil {
		return nil, nil, err
	}

	return resp.Request.URL, content, nil
}

// verifyChecksum validates content against a checksum carried in the URL
// fragment, e.g. "#sha256=...", as PEP 503 specifies.
func verifyChecksum(requestURL string, content []byte) error {
	u, err := url.Parse(requestURL)
	if err != nil || u.Fragment == "" {
		return nil //nolint:nilerr // malformed URL is not this function's concern
	}
	keyvals, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil
	}
	for key, vals := range keyvals {
		var sum []byte
		switch key {
		case "md5":
			s := md5.Sum(content)
			sum = s[:]
		case "sha1":
			s := sha1.Sum(content)
			sum = s[:]
		case "sha224":
			s := sha256.Sum224(content)
			sum = s[:]
		case "sha256":
			s := sha256.Sum256(content)
			sum = s[:]
		case "sha384":
			s := sha512.Sum384(content)
			sum = s[:]
		case "sha512":
			s := sha512.Sum512(content)
			sum = s[:]
		default:
			continue
		}
		for _, val := range vals {
			if hex.EncodeToString(sum) != val {
				return fmt.Errorf("checksum mismatch: %s: expected=%s actual=%s", key, val, hex.EncodeToString(sum))
			}
		}
	}
	return nil
}

// Link is an anchor element from a simple-index page.
type Link struct {
	Text      string
	HRef      string
	DataAttrs map[string]string
}

func visitHTML(node *html.Node, fn func(*html.Node) error) error {
	if err := fn(node); err != nil {
		return err
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := visitHTML(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func (c Client) getIndex(ctx context.Context, requestURL string) ([]Link, error) {
	location, content, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var links []Link
	err = visitHTML(doc, func(node *html.Node) error {
		if node.Type != html.ElementNode || node.Data != "a" {
			return nil
		}
		link := Link{DataAttrs: make(map[string]string)}
		for _, attr := range node.Attr {
			switch {
			case attr.Namespace == "" && attr.Key == "href":
				href, err := location.Parse(attr.Val)
				if err != nil {
					return err
				}
				link.HRef = href.String()
			case attr.Namespace == "" && strings.HasPrefix(attr.Key, "data-"):
				link.DataAttrs[attr.Key] = attr.Val
			}
		}
		var text strings.Builder
		_ = visitHTML(node, func(child *html.Node) error {
			if child.Type == html.TextNode {
				text.WriteString(child.Data)
			}
			return nil
		})
		link.Text = text.String()
		links = append(links, link)
		return nil
	})
	return links, err
}

var normalizeRe = regexp.MustCompile(`[-_.]+`)

// Normalize is PEP 503's project-name normalization: lowercase, runs of
// "-_." collapsed to a single "-".
func Normalize(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllLiteralString(name, "-"))
}

// ListProjectFiles fetches "{BaseURL}/{normalized-name}/" and returns every
// anchor on the page, filtered by data-requires-python when c.PythonVersion
// is set.
func (c Client) ListProjectFiles(ctx context.Context, name string) ([]Link, error) {
	c.fillDefaults()
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, Normalize(name)) + "/"

	links, err := c.getIndex(ctx, u.String())
	if err != nil {
		return nil, err
	}

	if c.PythonVersion == nil {
		return links, nil
	}

	filtered := links[:0]
	for _, link := range links {
		if reqPy := link.DataAttrs["data-requires-python"]; reqPy != "" {
			spec, err := pep440.ParseSpecifier(reqPy)
			if err == nil && !spec.Match(*c.PythonVersion) {
				continue
			}
		}
		filtered = append(filtered, link)
	}
	return filtered, nil
}

// Get downloads a file link's bytes, verifying any checksum fragment on its
// URL.
func (c Client) Get(ctx context.Context, link Link) ([]byte, error) {
	c.fillDefaults()
	_, content, err := c.get(ctx, link.HRef)
	return content, err
}
