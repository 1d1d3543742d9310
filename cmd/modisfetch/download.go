package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/modisfetch/internal/app"
	"github.com/jobrunner/modisfetch/internal/application"
	"github.com/jobrunner/modisfetch/internal/config"
	"github.com/jobrunner/modisfetch/internal/ports/input"
)

var sourceBindings = []flagBinding{
	{"url", "source.url"},
	{"source", "source.folder"},
	{"product", "source.product"},
	{"username", "source.username"},
	{"password", "source.password"},
	{"source-type", "source.type"},
	{"jpg", "download.previews"},
	{"clean", "download.clean"},
	{"xml-only", "download.xml_only"},
	{"dry-run", "download.dry_run"},
	{"manifest", "download.manifest"},
}

var downloadBindings = []flagBinding{
	{"tiles", "download.tiles"},
	{"point", "download.points"},
	{"firstday", "download.first_day"},
	{"endday", "download.end_day"},
	{"delta", "download.delta"},
	{"alldays", "download.all_days"},
}

var downloadCmd = &cobra.Command{
	Use:   "download DEST",
	Short: "Download the granules of a day window",
	Long: `Download the granules of the requested tiles for a window of days,
newest first. The window starts at --firstday (default today) and covers
--delta available days, or reaches back to --endday.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

var fromListCmd = &cobra.Command{
	Use:   "from-list DEST",
	Short: "Download the days and tiles named in a list of granules",
	Long: `Download every day and tile referenced by a list of granule names,
one per line. Lines may be paths or URLs; blank lines and # comments are
ignored. Use "-" to read the list from standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFromList,
}

func init() {
	addSourceFlags(downloadCmd)
	addDownloadFlags(downloadCmd)

	addSourceFlags(fromListCmd)
	fromListCmd.Flags().String("file", "", "file with one granule name per line")
	_ = fromListCmd.MarkFlagRequired("file")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("url", "u", "https://e4ftl01.cr.usgs.gov", "archive base URL (ftp://, https://)")
	cmd.Flags().StringP("source", "s", "MOLT", "archive folder (MOLT, MOLA, MOTA)")
	cmd.Flags().StringP("product", "p", "MOD11A1.061", "product with collection")
	cmd.Flags().StringP("username", "U", "", "archive username")
	cmd.Flags().StringP("password", "P", "", "archive password")
	cmd.Flags().String("source-type", "", "source type (ftp, http, s3, azure, local), derived from --url when empty")
	cmd.Flags().BoolP("jpg", "j", false, "also download JPEG previews")
	cmd.Flags().BoolP("clean", "c", false, "remove zero-byte files before downloading")
	cmd.Flags().BoolP("xml-only", "x", false, "only download XML metadata files")
	cmd.Flags().Bool("dry-run", false, "compute the plan without downloading")
	cmd.Flags().String("manifest", "", "manifest path (default: listfile{product}.txt in DEST)")
}

func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tiles", "t", "", "comma separated tiles, e.g. h18v04,h19v04 (default: all)")
	cmd.Flags().StringArray("point", nil, "lat,lon whose tile is added to the tiles (repeatable)")
	cmd.Flags().StringP("firstday", "f", "", "newest day of the window, YYYY-MM-DD (default: today)")
	cmd.Flags().StringP("endday", "e", "", "oldest day of the window, YYYY-MM-DD")
	cmd.Flags().IntP("delta", "D", 10, "number of available days to download")
	cmd.Flags().BoolP("oneday", "O", false, "download only one day")
	cmd.Flags().BoolP("alldays", "A", false, "download every available day")
}

func runDownload(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, sourceBindings)
	bindFlags(cmd, downloadBindings)
	if oneDay, _ := cmd.Flags().GetBool("oneday"); oneDay {
		viper.Set("download.delta", 1)
	}

	cfg, logger, closeLog, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return err
	}
	req, err := app.BuildRequest(cfg)
	if err != nil {
		return err
	}

	return download(cmd.Context(), cfg, logger, req)
}

func runFromList(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, sourceBindings)

	cfg, logger, closeLog, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	list, err := readGranuleList(file, cmd.InOrStdin())
	if err != nil {
		return err
	}
	logger.Info("read granule list", "file", file, "granules", len(list.Names), "days", len(list.Dates), "tiles", list.Tiles.String())

	d := cfg.Download
	req := list.Request(input.Request{
		Delta:    1,
		Previews: d.Previews,
		Clean:    d.Clean,
		XMLOnly:  d.XMLOnly,
		DryRun:   d.DryRun,
	})

	return download(cmd.Context(), cfg, logger, req)
}

func readGranuleList(file string, stdin io.Reader) (*application.GranuleList, error) {
	if file == "-" {
		return application.ParseGranuleList(stdin)
	}
	f, err := os.Open(file) //#nosec G304 -- list path from the command line
	if err != nil {
		return nil, fmt.Errorf("opening granule list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return application.ParseGranuleList(f)
}

// download runs one session. Files that failed are reported in the log and
// do not fail the command.
func download(ctx context.Context, cfg *config.Config, logger *slog.Logger, req input.Request) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting modisfetch",
		"version", version,
		"source", cfg.SourceType(),
		"product", cfg.Source.Product,
		"destination", cfg.Download.Destination,
		"tiles", req.Tiles.String(),
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close archive index", "error", err)
		}
	}()

	if err := a.InitDownloader(ctx); err != nil {
		return err
	}

	report, err := a.Downloader.Run(ctx, req)
	if mErr := a.WriteMetrics(); mErr != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", mErr)
	}
	if err != nil {
		return fmt.Errorf("download session: %w", err)
	}

	if report.HasFailures() {
		logger.Warn("some files could not be downloaded", "failed", report.Failed, "manifest", report.ManifestPath)
	}
	return nil
}
