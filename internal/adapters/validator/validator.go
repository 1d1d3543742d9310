// Package validator checks the structure of downloaded granules.
package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

var (
	hdf4Magic = []byte{0x0e, 0x03, 0x13, 0x01}
	hdf5Magic = []byte("\x89HDF\r\n\x1a\n")
)

// HDF5 superblocks may start at 0, 512, 1024, 2048, ... bytes.
var hdf5Offsets = []int64{0, 512, 1024, 2048}

// HDF checks the HDF4/HDF5 signature of .hdf files. Other files pass.
type HDF struct{}

// NewHDF creates a new HDF signature validator.
func NewHDF() *HDF {
	return &HDF{}
}

// Validate implements output.Validator.
func (v *HDF) Validate(_ context.Context, path string) error {
	if !strings.EqualFold(hdfExt(path), ".hdf") {
		return nil
	}

	f, err := os.Open(path) //#nosec G304 -- path is a partial download in the destination
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, len(hdf5Magic))
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if n >= len(hdf4Magic) && bytes.Equal(buf[:len(hdf4Magic)], hdf4Magic) {
		return nil
	}

	for _, off := range hdf5Offsets {
		n, err := f.ReadAt(buf, off)
		if n == len(buf) && bytes.Equal(buf, hdf5Magic) {
			return nil
		}
		if err != nil {
			break
		}
	}

	return fmt.Errorf("%s: missing HDF signature: %w", filepath.Base(path), domain.ErrCorruptFile)
}

// hdfExt returns the extension of the data file a path belongs to,
// ignoring the partial-download suffix.
func hdfExt(path string) string {
	return filepath.Ext(strings.TrimSuffix(path, ".part"))
}

// GDAL runs gdalinfo on .hdf files. A non-zero exit marks the file corrupt.
type GDAL struct {
	binary string
}

// NewGDAL creates a validator using the given gdalinfo binary.
// It fails if the binary cannot be found.
func NewGDAL(binary string) (*GDAL, error) {
	if binary == "" {
		binary = "gdalinfo"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", binary, err)
	}
	return &GDAL{binary: resolved}, nil
}

// Validate implements output.Validator.
func (v *GDAL) Validate(ctx context.Context, path string) error {
	if !strings.EqualFold(hdfExt(path), ".hdf") {
		return nil
	}

	// gdalinfo selects the driver by content, so the .part suffix is harmless.
	cmd := exec.CommandContext(ctx, v.binary, "-nomd", path) //#nosec G204 -- binary resolved at startup, path is local
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: gdalinfo: %s: %w", filepath.Base(path), firstLine(out), domain.ErrCorruptFile)
	}
	return nil
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	return line
}

// Chain runs validators in order and stops at the first failure.
type Chain []output.Validator

// Validate implements output.Validator.
func (c Chain) Validate(ctx context.Context, path string) error {
	for _, v := range c {
		if err := v.Validate(ctx, path); err != nil {
			return err
		}
	}
	return nil
}
