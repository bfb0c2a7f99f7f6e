package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mtakagi/vdup/internal/config"
	"github.com/mtakagi/vdup/internal/engine"
	"github.com/mtakagi/vdup/internal/index"
	"github.com/mtakagi/vdup/internal/scanner"
	"github.com/mtakagi/vdup/internal/types"
)

// indexOptions holds CLI flags for the index command.
type indexOptions struct {
	configPath string
	indexPath  string
	allFiles   bool
	withHashes bool
}

// newIndexCmd creates the index subcommand.
func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Rebuild the file search index from a directory tree",
		Long: `Walks a directory subtree and rebuilds the search index from the files
found. With --with-hashes a full duplicate scan runs first and confirmed
content hashes are stored alongside the entries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runIndex(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Preferences file")
	cmd.Flags().StringVar(&opts.indexPath, "index-file", "", "Index database path (default from preferences)")
	cmd.Flags().BoolVar(&opts.allFiles, "all-files", false, "Index every file regardless of extension")
	cmd.Flags().BoolVar(&opts.withHashes, "with-hashes", false, "Run duplicate detection and store confirmed hashes")

	return cmd
}

func runIndex(root string, opts *indexOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	indexPath := opts.indexPath
	if indexPath == "" {
		indexPath = cfg.IndexPath
	}

	extensions := cfg.Extensions
	if len(extensions) == 0 {
		extensions = engine.DefaultVideoExtensions
	}
	if opts.allFiles {
		extensions = nil
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	candidates, hashes, err := collectEntries(ctx, root, extensions, workers, cfg, opts.withHashes)
	if err != nil {
		return err
	}

	store, err := index.Open(indexPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Replace(ctx, candidates, hashes); err != nil {
		return err
	}

	fmt.Printf("Indexed %d files into %s\n", len(candidates), indexPath)
	return nil
}

// collectEntries gathers candidates for the index, either by a plain
// enumeration or, with hashes requested, through a full detection run.
func collectEntries(ctx context.Context, root string, extensions []string, workers int, cfg config.Config, withHashes bool) ([]types.Candidate, map[string]string, error) {
	if !withHashes {
		warn := func(w types.Warning) {
			slog.Warn("skipped during indexing", "path", w.Path, "reason", w.Message)
		}
		s := scanner.New(root, extensions, 0, workers, warn, nil)
		candidates, err := s.Run(ctx)
		if err != nil {
			return nil, nil, err
		}
		return candidates, nil, nil
	}

	minSize, err := config.ParseSize(cfg.MinSize)
	if err != nil {
		return nil, nil, err
	}
	run, err := engine.Start(root, engine.Options{
		Extensions:    extensions,
		MinSize:       minSize,
		Workers:       workers,
		HashAlgorithm: cfg.HashAlgorithm,
		CachePath:     cfg.CachePath,
	})
	if err != nil {
		return nil, nil, err
	}
	go func() {
		<-ctx.Done()
		run.Cancel()
	}()

	res, err := run.Wait(context.Background())
	if err != nil {
		return nil, nil, err
	}

	hashes := make(map[string]string)
	for _, g := range res.Groups {
		for _, e := range g.Entries {
			if e.FullHash != "" {
				hashes[e.Path] = e.FullHash
			}
		}
	}

	// Re-enumerate for the index itself: the engine reports groups,
	// not the full candidate list.
	s := scanner.New(root, extensions, 0, workers, nil, nil)
	candidates, err := s.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	return candidates, hashes, nil
}
