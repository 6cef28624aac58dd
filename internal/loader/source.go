package loader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/pkg/types"
)

const defaultFetchTimeout = 30 * time.Second

// Source yields the weekly table and a token that changes whenever the
// underlying data changes.
type Source interface {
	Load(ctx context.Context) (*types.Table, error)

	// Version returns an opaque token for the current state of the data.
	// An empty token means the source cannot tell, and callers fall back to
	// time-based refresh.
	Version(ctx context.Context) (string, error)

	// Describe names the source (file path or URL) for logs and cache keys.
	Describe() string
}

// New returns the Source for the given configuration.
func New(cfg config.SourceConfig) (Source, error) {
	if cfg.URL != "" {
		return NewHTTP(cfg.URL, buildHTTPClient(cfg), cfg.Format, cfg.Sheet, cfg.WeekLayout), nil
	}
	if cfg.Path != "" {
		return NewFile(cfg.Path, cfg.Format, cfg.Sheet, cfg.WeekLayout), nil
	}
	return nil, goerr.New("source has neither path nor url")
}

type options struct {
	format string
	sheet  string
	layout string
}

// resolveFormat returns the configured format, or detects it from name.
func (o options) resolveFormat(name string) string {
	if o.format != "" && o.format != FormatAuto {
		return o.format
	}
	return formatFromName(name)
}

func (o options) table(source string, data []byte, format string, now time.Time) (*types.Table, error) {
	rows, err := decode(format, data, o.sheet)
	if err != nil {
		return nil, goerr.Wrap(err, "decode source", goerr.V("source", source), goerr.V("format", format))
	}
	recs, err := parseRows(rows, o.layout)
	if err != nil {
		return nil, goerr.Wrap(err, "parse source", goerr.V("source", source))
	}
	return &types.Table{Source: source, LoadedAt: now.UTC(), Records: recs}, nil
}

// FileSource reads a local file. Its version token is the file's
// modification time and size.
type FileSource struct {
	path string
	opts options
	now  func() time.Time
}

// NewFile returns a FileSource. format may be "" or "auto" to detect from the
// extension.
func NewFile(path, format, sheet, layout string) *FileSource {
	return &FileSource{
		path: path,
		opts: options{format: format, sheet: sheet, layout: layout},
		now:  time.Now,
	}
}

// Describe implements Source.
func (s *FileSource) Describe() string { return s.path }

// Path returns the file path.
func (s *FileSource) Path() string { return s.path }

// Load implements Source.
func (s *FileSource) Load(_ context.Context) (*types.Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, goerr.Wrap(err, "read source file", goerr.V("path", s.path))
	}
	return s.opts.table(s.path, data, s.opts.resolveFormat(s.path), s.now())
}

// Version implements Source.
func (s *FileSource) Version(_ context.Context) (string, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return "", goerr.Wrap(err, "stat source file", goerr.V("path", s.path))
	}
	return fmt.Sprintf("%d-%d", fi.ModTime().UnixNano(), fi.Size()), nil
}

// HTTPSource fetches the table from a URL, e.g. a raw file in a git hosting
// service. Its version token is the ETag or Last-Modified response header.
type HTTPSource struct {
	url    string
	client *http.Client
	opts   options
	now    func() time.Time
}

// NewHTTP returns an HTTPSource using client. A nil client uses a plain
// client with the default timeout.
func NewHTTP(url string, client *http.Client, format, sheet, layout string) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &HTTPSource{
		url:    url,
		client: client,
		opts:   options{format: format, sheet: sheet, layout: layout},
		now:    time.Now,
	}
}

// Describe implements Source.
func (s *HTTPSource) Describe() string { return s.url }

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) (*types.Table, error) {
	resp, err := s.do(ctx, http.MethodGet)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "read response body", goerr.V("url", s.url))
	}

	format := s.opts.format
	if format == "" || format == FormatAuto {
		format = formatFromContentType(resp.Header.Get("Content-Type"))
		if format == "" {
			format = formatFromName(resp.Request.URL.Path)
		}
	}
	return s.opts.table(s.url, data, format, s.now())
}

// Version implements Source with a HEAD request. A server that refuses HEAD
// (4xx or 501) yields an empty version, so callers fall back to max age.
func (s *HTTPSource) Version(ctx context.Context) (string, error) {
	resp, err := s.send(ctx, http.MethodHead)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500, resp.StatusCode == http.StatusNotImplemented:
		slog.Debug("loader: HEAD refused, no version available",
			"url", s.url, "status", resp.StatusCode)
		return "", nil
	default:
		return "", goerr.New("unexpected status",
			goerr.V("url", s.url), goerr.V("method", http.MethodHead), goerr.V("status", resp.StatusCode))
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag, nil
	}
	return resp.Header.Get("Last-Modified"), nil
}

func (s *HTTPSource) do(ctx context.Context, method string) (*http.Response, error) {
	resp, err := s.send(ctx, method)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, goerr.New("unexpected status",
			goerr.V("url", s.url), goerr.V("method", method), goerr.V("status", resp.StatusCode))
	}
	return resp, nil
}

func (s *HTTPSource) send(ctx context.Context, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "build request", goerr.V("url", s.url))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "http request", goerr.V("url", s.url), goerr.V("method", method))
	}
	return resp, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(cfg config.SourceConfig) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			auth: cfg.Auth,
		},
		Timeout: defaultFetchTimeout,
	}
}
