package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/modisfetch/internal/adapters/storage"
	"github.com/jobrunner/modisfetch/internal/app"
	"github.com/jobrunner/modisfetch/internal/application"
	"github.com/jobrunner/modisfetch/internal/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check DEST",
	Short: "List granules missing from the destination",
	Long: `Compare the HDF files in DEST with every acquisition between --endday and
--firstday for every tile, and report the granules that are missing.
Use --days 8 for 8-day composites.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("tiles", "t", "", "comma separated tiles to expect")
	checkCmd.Flags().StringArray("point", nil, "lat,lon whose tile is expected (repeatable)")
	checkCmd.Flags().StringP("product", "p", "MOD11A1.061", "product, optionally with collection")
	checkCmd.Flags().String("version", "", "collection (default: taken from --product)")
	checkCmd.Flags().StringP("firstday", "f", "", "newest day, YYYY-MM-DD (default: today)")
	checkCmd.Flags().StringP("endday", "e", "", "oldest day, YYYY-MM-DD")
	checkCmd.Flags().Int("days", 1, "days between acquisitions")
	checkCmd.Flags().StringP("output", "o", "text", "output format (text, yaml, json)")
}

var checkBindings = []flagBinding{
	{"tiles", "download.tiles"},
	{"point", "download.points"},
	{"product", "source.product"},
	{"firstday", "download.first_day"},
	{"endday", "download.end_day"},
}

func runCheck(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, checkBindings)

	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "text", "yaml", "json":
	default:
		return &domain.ConfigError{Field: "output", Message: fmt.Sprintf("unknown output format %q", format)}
	}

	cfg, _, closeLog, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Download.Destination == "" {
		return &domain.ConfigError{Field: "download.destination", Message: "destination directory is required"}
	}

	window, err := app.BuildRequest(cfg)
	if err != nil {
		return err
	}

	req := application.CheckRequest{
		Product: cfg.ProductName(),
		Version: cfg.ProductVersion(),
		Tiles:   window.Tiles,
		To:      window.Today,
	}
	if v, _ := cmd.Flags().GetString("version"); v != "" {
		req.Version = v
	}
	req.Every, _ = cmd.Flags().GetInt("days")
	if req.To.IsZero() {
		req.To = time.Now().UTC()
	}
	if window.EndDate != nil {
		req.From = *window.EndDate
	}

	report, err := application.CheckMissing(cmd.Context(), storage.NewLocalStorage(cfg.Download.Destination), req)
	if err != nil {
		return err
	}

	return writeCheckReport(cmd.OutOrStdout(), report, format)
}

func writeCheckReport(w io.Writer, report *application.CheckReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()

	default:
		fmt.Fprintf(w, "%s: %d of %d granules present, %d missing\n",
			report.Product, report.Present, report.Expected, len(report.Missing))
		if report.Complete() {
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACQUISITION\tDATE\tTILE")
		for _, m := range report.Missing {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Acquisition, m.Date.Format(domain.DateLayout), m.Tile)
		}
		return tw.Flush()
	}
}
