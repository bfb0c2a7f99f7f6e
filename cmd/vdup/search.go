package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mtakagi/vdup/internal/config"
	"github.com/mtakagi/vdup/internal/index"
)

// searchOptions holds CLI flags for the search command.
type searchOptions struct {
	configPath string
	indexPath  string
	limit      int
}

// newSearchCmd creates the search subcommand.
func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [pattern]",
		Short: "Search the file index by name",
		Long: `Looks up indexed files whose name contains the pattern,
case-insensitively. Run "vdup index" first to build the index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSearch(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Preferences file")
	cmd.Flags().StringVar(&opts.indexPath, "index-file", "", "Index database path (default from preferences)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 100, "Maximum results (0 for unlimited)")

	return cmd
}

func runSearch(pattern string, opts *searchOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	indexPath := opts.indexPath
	if indexPath == "" {
		indexPath = cfg.IndexPath
	}
	if _, err := os.Stat(indexPath); err != nil {
		return fmt.Errorf("no index at %s, run \"vdup index\" first", indexPath)
	}

	store, err := index.Open(indexPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.SearchName(context.Background(), pattern, opts.limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Size", "Modified", "Directory"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Name, humanize.IBytes(uint64(e.Size)), e.ModTime.Format("2006-01-02 15:04"), e.Directory})
	}
	t.Render()
	fmt.Printf("%d matches\n", len(entries))
	return nil
}
