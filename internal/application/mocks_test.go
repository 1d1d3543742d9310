package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/input"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

var errMockTransport = errors.New("connection reset by peer")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testPolicy retries without waiting.
func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, ConnectAttempts: 3}
}

// mockRemote implements output.Remote over in-memory day directories.
type mockRemote struct {
	mu sync.Mutex

	listings map[domain.DayID][]string
	content  map[string][]byte

	// declared overrides the size announced by Open; -1 means unknown.
	declared map[string]int64
	// sizeOf overrides the answer of Size.
	sizeOf map[string]int64
	// truncate delivers fewer bytes than declared for the first n opens.
	truncate map[string]int
	// openFailures fails the first n opens of a file.
	openFailures map[string]int

	connectErr     error
	connectFails   int
	listDaysErr    error
	listFilesFails map[domain.DayID]int
	pingErr        error

	connects   int
	pings      int
	closes     int
	opens      map[string]int
	sizeCalls  int
	listCalls  int
	cancelOpen context.CancelFunc
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		listings:       make(map[domain.DayID][]string),
		content:        make(map[string][]byte),
		declared:       make(map[string]int64),
		sizeOf:         make(map[string]int64),
		truncate:       make(map[string]int),
		openFailures:   make(map[string]int),
		listFilesFails: make(map[domain.DayID]int),
		opens:          make(map[string]int),
	}
}

// add places a file with the given payload in a day directory.
func (m *mockRemote) add(day domain.DayID, name, payload string) {
	m.listings[day] = append(m.listings[day], name)
	m.content[name] = []byte(payload)
}

// addDay creates an empty day directory.
func (m *mockRemote) addDay(day domain.DayID) {
	if _, ok := m.listings[day]; !ok {
		m.listings[day] = nil
	}
}

func (m *mockRemote) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectFails > 0 {
		m.connectFails--
		return errMockTransport
	}
	return m.connectErr
}

func (m *mockRemote) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

func (m *mockRemote) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockRemote) ListDays(_ context.Context) ([]domain.DayID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listDaysErr != nil {
		return nil, m.listDaysErr
	}
	days := make([]domain.DayID, 0, len(m.listings))
	for day := range m.listings {
		days = append(days, day)
	}
	domain.SortNewestFirst(days)
	return days, nil
}

func (m *mockRemote) ListFiles(_ context.Context, day domain.DayID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listFilesFails[day] > 0 {
		m.listFilesFails[day]--
		return nil, errMockTransport
	}
	files, ok := m.listings[day]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), files...), nil
}

func (m *mockRemote) Open(_ context.Context, _ domain.DayID, name string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[name]++
	if m.cancelOpen != nil {
		m.cancelOpen()
	}
	if m.openFailures[name] > 0 {
		m.openFailures[name]--
		return nil, 0, errMockTransport
	}
	data, ok := m.content[name]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}

	size := int64(len(data))
	if d, ok := m.declared[name]; ok {
		size = d
	}
	if m.truncate[name] > 0 {
		m.truncate[name]--
		data = data[:len(data)/2]
	}
	return io.NopCloser(bytes.NewReader(data)), size, nil
}

func (m *mockRemote) Size(_ context.Context, _ domain.DayID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizeCalls++
	if n, ok := m.sizeOf[name]; ok {
		return n, nil
	}
	data, ok := m.content[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return int64(len(data)), nil
}

func (m *mockRemote) openCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[name]
}

// mockStore implements output.LocalStore in memory.
type mockStore struct {
	mu        sync.Mutex
	files     map[string][]byte
	partials  map[string]*bytes.Buffer
	removed   []string
	listErr   error
	createErr error
}

func newMockStore(names ...string) *mockStore {
	s := &mockStore{
		files:    make(map[string][]byte),
		partials: make(map[string]*bytes.Buffer),
	}
	for _, n := range names {
		s.files[n] = []byte("existing")
	}
	return s
}

type partialWriter struct {
	*bytes.Buffer
}

func (partialWriter) Close() error { return nil }

func (s *mockStore) List(_ context.Context) ([]output.LocalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]output.LocalFile, 0, len(s.files))
	for name, data := range s.files {
		out = append(out, output.LocalFile{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *mockStore) Create(name string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	buf := &bytes.Buffer{}
	s.partials[name] = buf
	return partialWriter{buf}, nil
}

func (s *mockStore) Commit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.partials[name]
	if !ok {
		return os.ErrNotExist
	}
	s.files[name] = buf.Bytes()
	delete(s.partials, name)
	return nil
}

func (s *mockStore) Discard(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partials, name)
	return nil
}

func (s *mockStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(s.files, name)
	s.removed = append(s.removed, name)
	return nil
}

func (s *mockStore) RemoveEmpty(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for name, data := range s.files {
		if _, err := domain.ParseGranule(name); err != nil {
			continue
		}
		if len(data) == 0 {
			delete(s.files, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func (s *mockStore) PartialPath(name string) string {
	return "partial/" + name
}

func (s *mockStore) Path(name string) string {
	return "final/" + name
}

func (s *mockStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

func (s *mockStore) partialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.partials)
}

// partialContent returns the bytes of a partial file by its path.
func (s *mockStore) partialContent(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.partials[strings.TrimPrefix(path, "partial/")]; ok {
		return buf.Bytes()
	}
	return nil
}

// mockManifest implements output.Manifest.
type mockManifest struct {
	names  []string
	closed bool
}

func (m *mockManifest) Append(name string) error {
	m.names = append(m.names, name)
	return nil
}

func (m *mockManifest) Path() string { return "listfileMOD11A1.txt" }

func (m *mockManifest) Close() error {
	m.closed = true
	return nil
}

// mockValidator rejects payloads containing "corrupt".
type mockValidator struct {
	store *mockStore
	calls []string
}

func (v *mockValidator) Validate(_ context.Context, path string) error {
	v.calls = append(v.calls, path)
	if bytes.Contains(v.store.partialContent(path), []byte("corrupt")) {
		return domain.ErrCorruptFile
	}
	return nil
}

// mockArchive implements output.ArchiveIndex in memory.
type mockArchive struct {
	mu      sync.Mutex
	records map[string]domain.ArchivedGranule
}

func newMockArchive() *mockArchive {
	return &mockArchive{records: make(map[string]domain.ArchivedGranule)}
}

func (a *mockArchive) Record(_ context.Context, g domain.ArchivedGranule) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[g.Name] = g
	return nil
}

func (a *mockArchive) Remove(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, name)
	return nil
}

func (a *mockArchive) Query(_ context.Context, q domain.ArchiveQuery) ([]domain.ArchivedGranule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.ArchivedGranule
	for _, g := range a.records {
		if q.Tile != "" && g.Tile != q.Tile {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *mockArchive) Close() error { return nil }

// mockMetrics counts what the services report.
type mockMetrics struct {
	output.NoOpMetrics
	mu       sync.Mutex
	files    map[string]int
	retries  map[string]int
	sessions int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{files: make(map[string]int), retries: make(map[string]int)}
}

func (m *mockMetrics) IncFiles(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[outcome]++
}

func (m *mockMetrics) IncRetries(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[reason]++
}

func (m *mockMetrics) ObserveSession(_ bool, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions++
}

// mockDownloader implements input.Downloader.
type mockDownloader struct {
	mu       sync.Mutex
	calls    int
	requests []input.Request
	report   *domain.Report
	err      error
	block    chan struct{}
}

func (d *mockDownloader) Run(_ context.Context, req input.Request) (*domain.Report, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	if d.report != nil {
		return d.report, nil
	}
	return &domain.Report{StartedAt: time.Now()}, nil
}

func (d *mockDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
