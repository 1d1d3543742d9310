package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/jobrunner/modisfetch/internal/domain"
)

const (
	defaultFTPPort    = "21"
	defaultFTPTimeout = 30 * time.Second
)

// FTPConfig holds FTP archive configuration.
type FTPConfig struct {
	URL      string // ftp://host[:port]/path/to/product
	Username string
	Password string
	Timeout  time.Duration
}

// FTPRemote implements output.Remote for FTP archives. The control
// connection is kept open for the whole session.
type FTPRemote struct {
	addr     string
	root     string
	username string
	password string
	timeout  time.Duration
	conn     *ftp.ServerConn
	logger   *slog.Logger
}

// NewFTPRemote creates a new FTP remote. No connection is made until Connect.
func NewFTPRemote(cfg FTPConfig, logger *slog.Logger) (*FTPRemote, error) {
	addr, root, err := parseFTPURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, &domain.ConfigError{Field: "source.username", Message: "FTP archives require username and password"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultFTPTimeout
	}

	return &FTPRemote{
		addr:     addr,
		root:     root,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		logger:   logger,
	}, nil
}

func parseFTPURL(raw string) (addr, root string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing ftp url: %w", err)
	}
	if u.Scheme != "ftp" || u.Hostname() == "" {
		return "", "", &domain.ConfigError{Field: "source.url", Message: fmt.Sprintf("not an ftp url: %q", raw)}
	}

	port := u.Port()
	if port == "" {
		port = defaultFTPPort
	}

	root = u.Path
	if root == "" {
		root = "/"
	}
	return net.JoinHostPort(u.Hostname(), port), root, nil
}

// Connect dials the server and logs in. An existing connection is dropped first.
func (r *FTPRemote) Connect(ctx context.Context) error {
	if r.conn != nil {
		_ = r.conn.Quit()
		r.conn = nil
	}

	conn, err := ftp.Dial(r.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(r.timeout),
	)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", r.addr, err)
	}

	if err := conn.Login(r.username, r.password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("logging in to %s: %w", r.addr, err)
	}

	r.conn = conn
	r.logger.Debug("ftp session established", "addr", r.addr, "root", r.root)
	return nil
}

// Ping sends a NOOP on the control connection.
func (r *FTPRemote) Ping(_ context.Context) error {
	if r.conn == nil {
		return errNotConnected
	}
	return r.conn.NoOp()
}

// Close ends the session.
func (r *FTPRemote) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Quit()
	r.conn = nil
	return err
}

// ListDays returns the day directories below the product root, newest first.
func (r *FTPRemote) ListDays(ctx context.Context) ([]domain.DayID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.conn == nil {
		return nil, errNotConnected
	}

	names, err := r.conn.NameList(r.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.root, err)
	}
	return daysFromNames(names), nil
}

// ListFiles returns the file names of a day directory.
func (r *FTPRemote) ListFiles(ctx context.Context, day domain.DayID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.conn == nil {
		return nil, errNotConnected
	}

	dir := path.Join(r.root, day.String())
	names, err := r.conn.NameList(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return fileNames(names), nil
}

// Open starts a RETR transfer. FTP does not announce the size, so -1 is
// returned; the caller must close the reader before issuing other commands.
func (r *FTPRemote) Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, -1, err
	}
	if r.conn == nil {
		return nil, -1, errNotConnected
	}

	resp, err := r.conn.Retr(r.filePath(day, name))
	if err != nil {
		return nil, -1, fmt.Errorf("retrieving %s: %w", name, err)
	}
	return resp, -1, nil
}

// Size issues a SIZE command.
func (r *FTPRemote) Size(ctx context.Context, day domain.DayID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if r.conn == nil {
		return -1, errNotConnected
	}

	size, err := r.conn.FileSize(r.filePath(day, name))
	if err != nil {
		return -1, fmt.Errorf("querying size of %s: %w", name, err)
	}
	return size, nil
}

func (r *FTPRemote) filePath(day domain.DayID, name string) string {
	return path.Join(r.root, day.String(), name)
}
