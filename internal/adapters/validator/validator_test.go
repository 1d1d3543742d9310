package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/modisfetch/internal/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestHDFValidate(t *testing.T) {
	hdf5At512 := make([]byte, 512+len(hdf5Magic))
	copy(hdf5At512[512:], hdf5Magic)

	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr bool
	}{
		{"hdf4", "a.hdf", append(append([]byte{}, hdf4Magic...), 0, 0, 0, 0), false},
		{"hdf4 partial", "a.hdf.part", append(append([]byte{}, hdf4Magic...), 1, 2, 3), false},
		{"hdf5", "a.hdf", append(append([]byte{}, hdf5Magic...), 0), false},
		{"hdf5 with user block", "a.hdf", hdf5At512, false},
		{"html error page", "a.hdf", []byte("<html><body>Login required</body></html>"), true},
		{"empty", "a.hdf", nil, true},
		{"xml is not checked", "a.hdf.xml", []byte("<GranuleMetaDataFile/>"), false},
		{"jpg is not checked", "a.jpg", []byte("JFIF"), false},
	}

	v := NewHDF()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)
			err := v.Validate(context.Background(), path)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrCorruptFile) {
					t.Errorf("Validate() error = %v, want ErrCorruptFile", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

type stubValidator struct {
	err   error
	calls int
}

func (s *stubValidator) Validate(_ context.Context, _ string) error {
	s.calls++
	return s.err
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	first := &stubValidator{err: domain.ErrCorruptFile}
	second := &stubValidator{}

	err := Chain{first, second}.Validate(context.Background(), "x.hdf")
	if !errors.Is(err, domain.ErrCorruptFile) {
		t.Errorf("Validate() error = %v", err)
	}
	if second.calls != 0 {
		t.Error("second validator should not run after a failure")
	}

	if err := (Chain{}).Validate(context.Background(), "x.hdf"); err != nil {
		t.Errorf("empty chain error = %v", err)
	}
}

func TestNewGDALMissingBinary(t *testing.T) {
	if _, err := NewGDAL("gdalinfo-does-not-exist"); err == nil {
		t.Error("NewGDAL() should fail for a missing binary")
	}
}
