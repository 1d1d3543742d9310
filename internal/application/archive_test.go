package application

import (
	"context"
	"testing"

	"github.com/jobrunner/modisfetch/internal/domain"
)

func TestArchiveServiceReindex(t *testing.T) {
	store := newMockStore(
		"MOD11A1.A2020010.h17v04.061.2020011000000.hdf",
		"MOD11A1.A2020009.h17v04.061.2020010000000.hdf",
		"listfileMOD11A1.txt",
	)
	index := newMockArchive()
	index.records["MOD11A1.A2020009.h17v04.061.2020010000000.hdf"] = domain.ArchivedGranule{
		Name: "MOD11A1.A2020009.h17v04.061.2020010000000.hdf",
		Tile: "h17v04",
		Day:  "2020.01.09",
	}
	index.records["MOD11A1.A2020001.h17v04.061.2020002000000.hdf"] = domain.ArchivedGranule{
		Name: "MOD11A1.A2020001.h17v04.061.2020002000000.hdf",
	}

	service := NewArchiveService(store, index, testLogger())
	stats, err := service.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}

	if stats.Added != 1 || stats.Removed != 1 || stats.Total != 2 {
		t.Errorf("stats = %+v, want 1 added, 1 removed, 2 total", stats)
	}
	added, ok := index.records["MOD11A1.A2020010.h17v04.061.2020011000000.hdf"]
	if !ok {
		t.Fatal("new granule should be indexed")
	}
	if added.Day != "2020.01.10" || added.Size != int64(len("existing")) {
		t.Errorf("indexed granule = %+v", added)
	}
	if _, ok := index.records["MOD11A1.A2020001.h17v04.061.2020002000000.hdf"]; ok {
		t.Error("stale entry should be removed")
	}

	granules, err := service.Query(context.Background(), domain.ArchiveQuery{Tile: "h17v04"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(granules) != 2 {
		t.Errorf("Query() returned %d granules, want 2", len(granules))
	}

	if err := service.Forget(context.Background(), "MOD11A1.A2020010.h17v04.061.2020011000000.hdf"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if len(index.records) != 1 {
		t.Errorf("records after Forget = %d, want 1", len(index.records))
	}
}
