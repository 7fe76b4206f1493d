package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/source"
	"github.com/zjrosen/bimview/internal/spatialtree"
	"github.com/zjrosen/bimview/internal/treediff"
)

// offlineWorkerURL stands in for the fragment worker when no viewer runs.
const offlineWorkerURL = "file:///dev/null"

var (
	treeSearch  string
	treeDiff    []string
	treeContext bool
)

var treeCmd = &cobra.Command{
	Use:   "tree [file.frag...]",
	Short: "Print the spatial structure of fragments files",
	Long: `Print the spatial structure (storeys, categories and elements) of
one or more fragments files, or of the last stored model when no file is
given.

Examples:
  # Outline the last opened model
  bimview tree

  # Only the branches matching a search
  bimview tree house.frag --search door

  # What changed between two exports
  bimview tree house-v1.frag --diff house-v2.frag`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVarP(&treeSearch, "search", "s", "", "keep only branches matching this text")
	treeCmd.Flags().StringArrayVar(&treeDiff, "diff", nil, "compare against these files (repeatable)")
	treeCmd.Flags().BoolVar(&treeContext, "context", false, "with --diff, also print unchanged lines")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	trees, err := loadTrees(ctx, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(treeDiff) > 0 {
		after, err := loadTrees(ctx, treeDiff)
		if err != nil {
			return err
		}
		diff := treediff.Trees(trees, after)
		_, _ = fmt.Fprint(out, diff.Unified(treeContext))
		_, _ = fmt.Fprintf(out, "+%d -%d\n", diff.Added, diff.Removed)
		return nil
	}

	if treeSearch != "" {
		trees = filterTrees(trees, treeSearch)
		if len(trees) == 0 {
			return fmt.Errorf("nothing matches %q", treeSearch)
		}
	}
	_, _ = fmt.Fprint(out, treediff.Outline(trees))
	return nil
}

// loadTrees loads each file into an offline engine and reads back its
// spatial structure. No files means the last stored model.
func loadTrees(ctx context.Context, files []string) ([]inspector.ModelTree, error) {
	eng := memengine.New()
	defer eng.Dispose()
	fragments := eng.Fragments()
	if err := fragments.Init(offlineWorkerURL); err != nil {
		return nil, err
	}

	if len(files) == 0 {
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()
		_, err = source.New(fragments, source.WithStore(db.Fragments())).Last(ctx)
		if errors.Is(err, source.ErrNothingStored) {
			return nil, errors.New("no model stored yet; pass a fragments file")
		}
		if err != nil {
			return nil, err
		}
	} else {
		src := source.New(fragments)
		for _, f := range files {
			if _, err := src.File(ctx, f, ""); err != nil {
				return nil, err
			}
		}
	}

	maxTries := max(cfg.Tree.MaxTries, 1)
	loader := inspector.NewLoader(fragments, inspector.WithRetry(maxTries, cfg.Tree.RetryStep))
	defer loader.Close()
	trees := loader.LoadTrees(ctx)
	if len(trees) == 0 {
		return nil, errors.New("no model tree could be loaded")
	}
	return trees, nil
}

func filterTrees(trees []inspector.ModelTree, query string) []inspector.ModelTree {
	var out []inspector.ModelTree
	for _, t := range trees {
		if f := spatialtree.Filter(t.Tree, query); f != nil {
			out = append(out, inspector.ModelTree{ModelID: t.ModelID, Tree: f.Node()})
		}
	}
	return out
}
