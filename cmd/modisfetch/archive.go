package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jobrunner/modisfetch/internal/app"
	"github.com/jobrunner/modisfetch/internal/config"
	"github.com/jobrunner/modisfetch/internal/domain"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query or rebuild the archive index",
}

var archiveListCmd = &cobra.Command{
	Use:   "list [DEST]",
	Short: "List indexed granules",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchiveList,
}

var archiveReindexCmd = &cobra.Command{
	Use:   "reindex [DEST]",
	Short: "Rebuild the index from the destination directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchiveReindex,
}

func init() {
	addArchiveListFlags(archiveListCmd)

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveReindexCmd)
}

func addArchiveListFlags(cmd *cobra.Command) {
	cmd.Flags().String("product", "", "product short name, e.g. MOD11A1")
	cmd.Flags().StringP("tile", "t", "", "tile, e.g. h18v04")
	cmd.Flags().String("from", "", "oldest day, YYYY-MM-DD")
	cmd.Flags().String("to", "", "newest day, YYYY-MM-DD")
	cmd.Flags().Int("limit", 100, "maximum number of granules")
	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")
}

func openArchive(cmd *cobra.Command, args []string) (*app.App, func(), error) {
	cfg, logger, closeLog, err := loadConfig(args)
	if err != nil {
		return nil, nil, err
	}
	if err := requireArchive(cfg); err != nil {
		closeLog()
		return nil, nil, err
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close archive index", "error", err)
		}
		closeLog()
	}, nil
}

func requireArchive(cfg *config.Config) error {
	if cfg.Download.Destination == "" {
		return &domain.ConfigError{Field: "download.destination", Message: "destination directory is required"}
	}
	if !cfg.Archive.Enabled || cfg.Download.DryRun {
		return &domain.ConfigError{Field: "archive.enabled", Message: "archive index is disabled"}
	}
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	q, err := archiveQuery(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")
	if format != "text" && format != "json" {
		return &domain.ConfigError{Field: "output", Message: fmt.Sprintf("unknown output format %q", format)}
	}

	a, closeAll, err := openArchive(cmd, args)
	if err != nil {
		return err
	}
	defer closeAll()

	granules, err := a.Archive.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	return writeGranules(cmd.OutOrStdout(), granules, format)
}

func runArchiveReindex(cmd *cobra.Command, args []string) error {
	a, closeAll, err := openArchive(cmd, args)
	if err != nil {
		return err
	}
	defer closeAll()

	stats, err := a.Archive.Reindex(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d, removed %d, total %d\n", stats.Added, stats.Removed, stats.Total)
	return nil
}

func archiveQuery(cmd *cobra.Command) (domain.ArchiveQuery, error) {
	var q domain.ArchiveQuery
	q.Product, _ = cmd.Flags().GetString("product")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	if tile, _ := cmd.Flags().GetString("tile"); tile != "" {
		if _, err := domain.NewTileFilter(tile); err != nil {
			return q, err
		}
		q.Tile = tile
	}
	for flag, day := range map[string]*domain.DayID{"from": &q.From, "to": &q.To} {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			continue
		}
		t, err := domain.ParseDate(v)
		if err != nil {
			return q, err
		}
		*day = domain.NewDayID(t)
	}
	return q, nil
}

func writeGranules(w io.Writer, granules []domain.ArchivedGranule, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(granules)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTILE\tDAY\tSIZE")
	for _, g := range granules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", g.Name, g.Tile, g.Day, g.Size)
	}
	return tw.Flush()
}
