package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// EarthdataLoginHost is the NASA single sign-on host the data pools redirect to.
const EarthdataLoginHost = "urs.earthdata.nasa.gov"

// HTTPConfig holds HTTP archive configuration.
type HTTPConfig struct {
	URL       string // Product directory, e.g. https://e4ftl01.cr.usgs.gov/MOLT/MOD11A1.061
	Username  string
	Password  string
	Timeout   time.Duration
	UserAgent string
}

// HTTPRemote implements output.Remote for archives served as HTML directory
// indexes. Session cookies from the login redirect are kept in a cookie jar.
type HTTPRemote struct {
	client    *http.Client
	baseURL   string
	host      string
	username  string
	password  string
	userAgent string
	logger    *slog.Logger
}

// NewHTTPRemote creates a new HTTP remote.
func NewHTTPRemote(cfg HTTPConfig, logger *slog.Logger) (*HTTPRemote, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing http url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &domain.ConfigError{Field: "source.url", Message: fmt.Sprintf("not an http url: %q", cfg.URL)}
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "modisfetch"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	r := &HTTPRemote{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		host:      u.Host,
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
	r.client = &http.Client{
		Timeout:       cfg.Timeout,
		Jar:           jar,
		CheckRedirect: r.checkRedirect,
	}
	return r, nil
}

// checkRedirect keeps credentials on redirects to the archive host or the
// Earthdata login host; net/http drops them on cross-host redirects.
func (r *HTTPRemote) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if r.hasCredentials() && (req.URL.Host == r.host || req.URL.Host == EarthdataLoginHost) {
		req.SetBasicAuth(r.username, r.password)
	}
	return nil
}

func (r *HTTPRemote) hasCredentials() bool {
	return r.username != "" && r.password != ""
}

func (r *HTTPRemote) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if r.hasCredentials() {
		req.SetBasicAuth(r.username, r.password)
	}
	req.Header.Set("User-Agent", r.userAgent)
	return req, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := r.newRequest(ctx, method, target)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, statusError(resp.StatusCode, target)
	}
	return resp, nil
}

func statusError(code int, target string) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("HTTP %d for %s: %w", code, target, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("HTTP %d for %s: check credentials: %w", code, target, domain.ErrInvalidInput)
	default:
		return fmt.Errorf("HTTP %d for %s: %w", code, target, domain.ErrUnavailable)
	}
}

// Connect fetches the product index, which also performs the login redirect.
func (r *HTTPRemote) Connect(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, r.baseURL+"/")
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", r.baseURL, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	r.logger.Debug("http session established", "url", r.baseURL)
	return nil
}

// Ping checks the product index is still reachable.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodHead, r.baseURL+"/")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Close releases idle connections.
func (r *HTTPRemote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *HTTPRemote) listIndex(ctx context.Context, target string) ([]string, error) {
	resp, err := r.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return parseIndexLinks(resp.Body)
}

// ListDays returns the day directories linked from the product index, newest first.
func (r *HTTPRemote) ListDays(ctx context.Context) ([]domain.DayID, error) {
	links, err := r.listIndex(ctx, r.baseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("listing days: %w", err)
	}

	names := make([]string, 0, len(links))
	for _, link := range links {
		if p, ok := linkPath(link); ok {
			names = append(names, p)
		}
	}
	return daysFromNames(names), nil
}

// ListFiles returns the files linked from a day index in document order.
func (r *HTTPRemote) ListFiles(ctx context.Context, day domain.DayID) ([]string, error) {
	links, err := r.listIndex(ctx, r.dayURL(day)+"/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", day, err)
	}

	entries := make([]string, 0, len(links))
	for _, link := range links {
		p, ok := linkPath(link)
		if !ok || strings.HasSuffix(p, "/") {
			continue
		}
		entries = append(entries, p)
	}
	return fileNames(entries), nil
}

// linkPath returns the unescaped path of an index link, skipping sort
// links, fragments and links to other hosts.
func linkPath(link string) (string, bool) {
	if link == "" || strings.HasPrefix(link, "?") || strings.HasPrefix(link, "#") {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil || u.Host != "" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

// Open issues a GET. The declared size is the Content-Length, or -1.
func (r *HTTPRemote) Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error) {
	resp, err := r.do(ctx, http.MethodGet, r.fileURL(day, name))
	if err != nil {
		return nil, -1, err
	}
	return resp.Body, resp.ContentLength, nil
}

// Size issues a HEAD and returns the Content-Length, or -1 if the server omits it.
func (r *HTTPRemote) Size(ctx context.Context, day domain.DayID, name string) (int64, error) {
	resp, err := r.do(ctx, http.MethodHead, r.fileURL(day, name))
	if err != nil {
		return -1, err
	}
	_ = resp.Body.Close()
	return resp.ContentLength, nil
}

func (r *HTTPRemote) dayURL(day domain.DayID) string {
	return r.baseURL + "/" + day.String()
}

func (r *HTTPRemote) fileURL(day domain.DayID, name string) string {
	return r.dayURL(day) + "/" + url.PathEscape(name)
}
