package application

import (
	"context"
	"errors"
	"testing"

	"github.com/jobrunner/modisfetch/internal/domain"
)

const (
	testDay  = domain.DayID("2020.01.10")
	testHDF  = "MOD11A1.A2020010.h17v04.061.2020011000000.hdf"
	testXML  = "MOD11A1.A2020010.h17v04.061.2020011000000.hdf.xml"
	testData = "HDF payload"
)

type engineFixture struct {
	remote    *mockRemote
	store     *mockStore
	manifest  *mockManifest
	validator *mockValidator
	archive   *mockArchive
	metrics   *mockMetrics
	engine    *TransferEngine
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		remote:   newMockRemote(),
		store:    newMockStore(),
		manifest: &mockManifest{},
		archive:  newMockArchive(),
		metrics:  newMockMetrics(),
	}
	f.validator = &mockValidator{store: f.store}
	f.engine = NewTransferEngine(f.remote, f.store, f.manifest, f.validator, f.archive, f.metrics, testPolicy(), testLogger())
	return f
}

func TestTransferEngineFetch(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)

	n, err := f.engine.Fetch(context.Background(), testDay, testHDF)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n != int64(len(testData)) {
		t.Errorf("Fetch() = %d bytes, want %d", n, len(testData))
	}
	if !f.store.has(testHDF) {
		t.Error("file should be committed")
	}
	if f.store.partialCount() != 0 {
		t.Error("no partial file should remain")
	}
	if len(f.manifest.names) != 1 || f.manifest.names[0] != testHDF {
		t.Errorf("manifest = %v", f.manifest.names)
	}
	rec, ok := f.archive.records[testHDF]
	if !ok {
		t.Fatal("granule should be recorded in the archive index")
	}
	if rec.Day != testDay || rec.Tile != "h17v04" || rec.Size != int64(len(testData)) {
		t.Errorf("archive record = %+v", rec)
	}
	if len(f.validator.calls) != 1 || f.validator.calls[0] != "partial/"+testHDF {
		t.Errorf("validator calls = %v", f.validator.calls)
	}
}

func TestTransferEngineSizeMismatchNeverReachesManifest(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)
	f.remote.declared[testHDF] = 1000

	_, err := f.engine.Fetch(context.Background(), testDay, testHDF)

	var transferErr *domain.TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("Fetch() error = %v, want TransferError", err)
	}
	if transferErr.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", transferErr.Attempts)
	}
	if !errors.Is(err, domain.ErrTransferExhausted) || !errors.Is(err, domain.ErrSizeMismatch) {
		t.Errorf("error should wrap ErrTransferExhausted and ErrSizeMismatch: %v", err)
	}
	if len(f.manifest.names) != 0 {
		t.Errorf("manifest = %v, want empty", f.manifest.names)
	}
	if f.store.has(testHDF) || f.store.partialCount() != 0 {
		t.Error("mismatched transfer must leave no file behind")
	}
	if len(f.archive.records) != 0 {
		t.Error("mismatched transfer must not be indexed")
	}
	if got := f.metrics.retries[reasonSizeMismatch]; got != 4 {
		t.Errorf("size mismatch retries = %d, want 4", got)
	}
}

func TestTransferEngineRecoversFromShortTransfer(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)
	f.remote.truncate[testHDF] = 1

	if _, err := f.engine.Fetch(context.Background(), testDay, testHDF); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := f.remote.openCount(testHDF); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
	if !f.store.has(testHDF) {
		t.Error("file should be committed on the second attempt")
	}
}

func TestTransferEngineUnknownSize(t *testing.T) {
	tests := []struct {
		name      string
		sizeOf    int64
		useSizeOf bool
		wantErr   bool
	}{
		{name: "size query answers", useSizeOf: false},
		{name: "size query unknown", sizeOf: -1, useSizeOf: true},
		{name: "size query disagrees", sizeOf: 3, useSizeOf: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture()
			f.remote.add(testDay, testHDF, testData)
			f.remote.declared[testHDF] = -1
			if tt.useSizeOf {
				f.remote.sizeOf[testHDF] = tt.sizeOf
			}

			_, err := f.engine.Fetch(context.Background(), testDay, testHDF)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if f.remote.sizeCalls == 0 {
				t.Error("Size() should be queried when the stream has no size")
			}
		})
	}
}

func TestTransferEngineReconnectsAfterTransportFault(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)
	f.remote.openFailures[testHDF] = 2
	f.remote.pingErr = errMockTransport

	if _, err := f.engine.Fetch(context.Background(), testDay, testHDF); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if f.remote.pings != 2 {
		t.Errorf("pings = %d, want 2", f.remote.pings)
	}
	if f.remote.connects != 2 {
		t.Errorf("reconnects = %d, want 2", f.remote.connects)
	}
	if got := f.metrics.retries[reasonTransport]; got != 2 {
		t.Errorf("transport retries = %d, want 2", got)
	}
}

func TestTransferEngineValidator(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, "corrupt payload")
	f.remote.add(testDay, testXML, "corrupt looking xml")

	_, err := f.engine.Fetch(context.Background(), testDay, testHDF)
	if !errors.Is(err, domain.ErrCorruptFile) {
		t.Fatalf("Fetch() error = %v, want ErrCorruptFile", err)
	}
	if len(f.validator.calls) != 5 {
		t.Errorf("validator calls = %d, want 5", len(f.validator.calls))
	}
	if f.store.has(testHDF) {
		t.Error("corrupt file must not be committed")
	}

	if _, err := f.engine.Fetch(context.Background(), testDay, testXML); err != nil {
		t.Fatalf("Fetch(xml) error = %v", err)
	}
	if len(f.validator.calls) != 5 {
		t.Error("sidecars must not be validated")
	}
}

func TestTransferEngineCancellation(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)

	ctx, cancel := context.WithCancel(context.Background())
	f.remote.cancelOpen = cancel

	_, err := f.engine.Fetch(ctx, testDay, testHDF)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	if f.remote.openCount(testHDF) != 1 {
		t.Errorf("opens = %d, want 1", f.remote.openCount(testHDF))
	}
	if f.store.partialCount() != 0 || f.store.has(testHDF) {
		t.Error("canceled transfer must leave no file behind")
	}
}

func TestTransferEngineLocalFailureIsPermanent(t *testing.T) {
	f := newEngineFixture()
	f.remote.add(testDay, testHDF, testData)
	f.store.createErr = errors.New("disk full")

	_, err := f.engine.Fetch(context.Background(), testDay, testHDF)

	var transferErr *domain.TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("Fetch() error = %v, want TransferError", err)
	}
	if transferErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", transferErr.Attempts)
	}
}
