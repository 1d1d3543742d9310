package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jobrunner/modisfetch/internal/domain"
)

const testPayload = "HDF payload bytes"

// newArchiveServer serves a two-day product directory with HTML indexes.
func newArchiveServer(t *testing.T, requireAuth bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/MOLT/MOD11A1.061/", func(w http.ResponseWriter, r *http.Request) {
		if requireAuth {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "user" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		rest := strings.TrimPrefix(r.URL.Path, "/MOLT/MOD11A1.061/")
		switch rest {
		case "":
			fmt.Fprint(w, `<html><body>
<a href="?C=M;O=A">Last modified</a>
<a href="/MOLT/">Parent Directory</a>
<a href="2020.01.01/">2020.01.01/</a>
<a href="2020.01.09/">2020.01.09/</a>
<a href="2020.01.10/">2020.01.10/</a>
</body></html>`)
		case "2020.01.10/":
			fmt.Fprint(w, `<html><body>
<a href="/MOLT/MOD11A1.061/">Parent Directory</a>
<a href="MOD11A1.A2020010.h17v04.061.2020011000000.hdf">MOD11A1.A2020010.h17v04.061.2020011000000.hdf</a>
<a href="MOD11A1.A2020010.h17v04.061.2020011000000.hdf.xml">MOD11A1.A2020010.h17v04.061.2020011000000.hdf.xml</a>
<a href="BROWSE.MOD11A1.A2020010.h17v04.061.2020011000000.1.jpg">BROWSE.MOD11A1.A2020010.h17v04.061.2020011000000.1.jpg</a>
</body></html>`)
		case "2020.01.10/MOD11A1.A2020010.h17v04.061.2020011000000.hdf":
			w.Header().Set("Content-Length", fmt.Sprint(len(testPayload)))
			if r.Method == http.MethodHead {
				return
			}
			fmt.Fprint(w, testPayload)
		default:
			http.NotFound(w, r)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRemoteListing(t *testing.T) {
	srv := newArchiveServer(t, false)
	r, err := NewHTTPRemote(HTTPConfig{URL: srv.URL + "/MOLT/MOD11A1.061/"}, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPRemote() error = %v", err)
	}
	ctx := context.Background()

	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = r.Close() }()

	days, err := r.ListDays(ctx)
	if err != nil {
		t.Fatalf("ListDays() error = %v", err)
	}
	wantDays := []domain.DayID{"2020.01.10", "2020.01.09", "2020.01.01"}
	if len(days) != len(wantDays) {
		t.Fatalf("ListDays() = %v, want %v", days, wantDays)
	}
	for i := range wantDays {
		if days[i] != wantDays[i] {
			t.Errorf("days[%d] = %q, want %q", i, days[i], wantDays[i])
		}
	}

	files, err := r.ListFiles(ctx, "2020.01.10")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("ListFiles() = %v, want 3 files", files)
	}
	if files[0] != "MOD11A1.A2020010.h17v04.061.2020011000000.hdf" {
		t.Errorf("files[0] = %q", files[0])
	}
}

func TestHTTPRemoteOpenAndSize(t *testing.T) {
	srv := newArchiveServer(t, false)
	r, err := NewHTTPRemote(HTTPConfig{URL: srv.URL + "/MOLT/MOD11A1.061"}, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPRemote() error = %v", err)
	}
	ctx := context.Background()
	name := "MOD11A1.A2020010.h17v04.061.2020011000000.hdf"

	body, size, err := r.Open(ctx, "2020.01.10", name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != testPayload {
		t.Errorf("body = %q, want %q", data, testPayload)
	}
	if size != int64(len(testPayload)) {
		t.Errorf("declared size = %d, want %d", size, len(testPayload))
	}

	got, err := r.Size(ctx, "2020.01.10", name)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if got != int64(len(testPayload)) {
		t.Errorf("Size() = %d, want %d", got, len(testPayload))
	}

	_, _, err = r.Open(ctx, "2020.01.10", "missing.hdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestHTTPRemoteCredentials(t *testing.T) {
	srv := newArchiveServer(t, true)
	ctx := context.Background()

	anonymous, err := NewHTTPRemote(HTTPConfig{URL: srv.URL + "/MOLT/MOD11A1.061"}, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPRemote() error = %v", err)
	}
	if err := anonymous.Connect(ctx); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Connect() without credentials error = %v, want ErrInvalidInput", err)
	}

	authed, err := NewHTTPRemote(HTTPConfig{
		URL:      srv.URL + "/MOLT/MOD11A1.061",
		Username: "user",
		Password: "secret",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPRemote() error = %v", err)
	}
	if err := authed.Connect(ctx); err != nil {
		t.Fatalf("Connect() with credentials error = %v", err)
	}
	if err := authed.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewHTTPRemoteInvalidURL(t *testing.T) {
	if _, err := NewHTTPRemote(HTTPConfig{URL: "ftp://example.com/x"}, testLogger()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("NewHTTPRemote() error = %v, want ErrInvalidInput", err)
	}
}

func TestLinkPath(t *testing.T) {
	tests := []struct {
		link   string
		want   string
		wantOK bool
	}{
		{"2020.01.01/", "2020.01.01/", true},
		{"/MOLT/", "/MOLT/", true},
		{"?C=N;O=D", "", false},
		{"#top", "", false},
		{"https://other.example.com/x.hdf", "", false},
		{"a%20b.hdf", "a b.hdf", true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, ok := linkPath(tt.link)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("linkPath(%q) = %q, %v; want %q, %v", tt.link, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
