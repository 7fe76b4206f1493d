package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the fragments database",
	Long: `Inspect or empty the local database that keeps the last opened model
so the viewer can restore it on the next start.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored fragments payloads",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Remove stored payloads by key",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRemove,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored payload",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheRemoveCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openDB() (*sqlite.DB, error) {
	db, err := sqlite.NewDB(cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening fragments database: %w", err)
	}
	return db, nil
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	entries, err := db.Fragments().List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No stored models.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tMODEL\tSOURCE\tSIZE\tSTORED\tDIGEST")
	for _, e := range entries {
		digest := e.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s (%s on disk)\t%s\t%s\n",
			e.Key, e.ModelID, e.Source,
			humanize.Bytes(uint64(e.Size)), humanize.Bytes(uint64(e.StoredSize)),
			humanize.Time(e.StoredAt), digest)
	}
	return w.Flush()
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, key := range args {
		if err := db.Fragments().Delete(cmd.Context(), key); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := db.Fragments().Clear(cmd.Context())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d stored %s\n", n, plural(int(n), "model", "models"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
