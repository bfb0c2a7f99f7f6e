package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mtakagi/vdup/internal/config"
	"github.com/mtakagi/vdup/internal/engine"
	"github.com/mtakagi/vdup/internal/types"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	configPath     string
	minSizeStr     string
	extensions     []string
	allFiles       bool
	workers        int
	sampleWindow   string
	chunkSize      string
	hashAlgo       string
	cacheFile      string
	nameSimilarity bool
	durationMatch  bool
	ffprobe        string
	noProgress     bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory tree for duplicate videos",
		Long: `Scans a directory subtree for byte-identical video files using staged
elimination: size bucketing, sampled fingerprints, then full-content
hashing for the surviving candidates. Optional lower-confidence groups
can be proposed from file name similarity or matching durations.

The scan only identifies duplicates; it never deletes or modifies files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Preferences file")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", "", "Minimum file size (e.g., 100, 1K, 10M)")
	cmd.Flags().StringSliceVarP(&opts.extensions, "ext", "e", nil, "Extensions to scan (default: common video extensions)")
	cmd.Flags().BoolVar(&opts.allFiles, "all-files", false, "Scan every file regardless of extension")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel workers (default: CPU count)")
	cmd.Flags().StringVar(&opts.sampleWindow, "sample-window", "", "Sampled fingerprint window size")
	cmd.Flags().StringVar(&opts.chunkSize, "chunk-size", "", "Full-hash read chunk size")
	cmd.Flags().StringVar(&opts.hashAlgo, "hash", "", "Strong hash algorithm: blake3 or sha256")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching)")
	cmd.Flags().BoolVar(&opts.nameSimilarity, "name-similarity", false, "Also propose groups from file name similarity")
	cmd.Flags().BoolVar(&opts.durationMatch, "duration-match", false, "Also propose groups from matching durations (needs ffprobe)")
	cmd.Flags().StringVar(&opts.ffprobe, "ffprobe", "", "Path to the ffprobe binary")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")

	return cmd
}

// buildOptions merges the preferences file with explicitly set flags;
// flags win.
func buildOptions(cmd *cobra.Command, opts *scanOptions) (engine.Options, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return engine.Options{}, err
	}

	pick := func(flag, flagVal, cfgVal string) string {
		if cmd.Flags().Changed(flag) {
			return flagVal
		}
		if cfgVal != "" {
			return cfgVal
		}
		return flagVal
	}

	minSize, err := config.ParseSize(pick("min-size", opts.minSizeStr, cfg.MinSize))
	if err != nil {
		return engine.Options{}, fmt.Errorf("invalid min size: %w", err)
	}
	window, err := config.ParseSize(pick("sample-window", opts.sampleWindow, cfg.SampleWindow))
	if err != nil {
		return engine.Options{}, fmt.Errorf("invalid sample window: %w", err)
	}
	chunk, err := config.ParseSize(pick("chunk-size", opts.chunkSize, cfg.ChunkSize))
	if err != nil {
		return engine.Options{}, fmt.Errorf("invalid chunk size: %w", err)
	}

	extensions := opts.extensions
	if len(extensions) == 0 {
		extensions = cfg.Extensions
	}
	if len(extensions) == 0 {
		extensions = engine.DefaultVideoExtensions
	}
	if opts.allFiles {
		extensions = nil
	}

	workers := opts.workers
	if workers == 0 {
		workers = cfg.Workers
	}

	return engine.Options{
		Extensions:        extensions,
		MinSize:           minSize,
		SampleWindowBytes: window,
		ChunkBytes:        chunk,
		Workers:           workers,
		HashAlgorithm:     pick("hash", opts.hashAlgo, cfg.HashAlgorithm),
		CachePath:         pick("cache-file", opts.cacheFile, cfg.CachePath),
		NameSimilarity:    opts.nameSimilarity || cfg.NameSimilarity,
		DurationMatch:     opts.durationMatch || cfg.DurationMatch,
		FFprobeBinary:     pick("ffprobe", opts.ffprobe, cfg.FFprobe),
	}, nil
}

// runScan executes a detection run and renders the result.
func runScan(cmd *cobra.Command, root string, opts *scanOptions) error {
	engineOpts, err := buildOptions(cmd, opts)
	if err != nil {
		return err
	}

	run, err := engine.Start(root, engineOpts)
	if err != nil {
		return err
	}
	slog.Debug("run started", "id", run.ID, "root", root)

	// Ctrl-C cancels the run; the pipeline drains before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		run.Cancel()
	}()

	bar := newProgressBar(!opts.noProgress)
	for p := range run.Updates(100 * time.Millisecond) {
		bar.Describe(progressLine(p))
	}
	bar.Finish()

	res, err := run.Wait(context.Background())
	if err != nil {
		return err
	}

	printGroups(res.Groups)
	printWarnings(res.Warnings)
	return nil
}

func progressLine(p engine.Progress) string {
	return fmt.Sprintf("Scanned %d/%d files, hashed %s, %d groups",
		p.FilesScanned, p.FilesTotal, humanize.IBytes(uint64(p.BytesHashed)), p.GroupCount)
}

// printGroups renders duplicate groups as a table on stdout.
func printGroups(groups []types.Group) {
	if len(groups) == 0 {
		fmt.Println("No duplicates found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Group", "Reason", "Score", "Size", "Path"})
	for _, g := range groups {
		for i, e := range g.Entries {
			if i == 0 {
				t.AppendRow(table.Row{g.ID, g.Reason, fmt.Sprintf("%.2f", g.Score), humanize.IBytes(uint64(e.Size)), e.Path})
			} else {
				t.AppendRow(table.Row{"", "", "", humanize.IBytes(uint64(e.Size)), e.Path})
			}
		}
		t.AppendSeparator()
	}
	t.Render()
}

// printWarnings lists per-file problems so the user can tell a clean
// result from an incomplete one.
func printWarnings(warnings []types.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%d files could not be checked:\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", w.Path, w.Message)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vdup.toml"
	}
	return home + "/.vdup/config.toml"
}
