package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zjrosen/bimview/internal/config"
	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
)

var (
	uploadOut     string
	uploadNoStore bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.ifc>",
	Short: "Convert an IFC file to fragments through the API",
	Long: `Upload an IFC file to the conversion API and store the resulting
fragments as the last opened model, so the next start of the viewer
restores it.

Examples:
  # Convert and store
  bimview upload house.ifc

  # Also write the fragments to a file
  bimview upload house.ifc --out house.frag

  # Only write the file
  bimview upload house.ifc --out house.frag --no-store`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadOut, "out", "o", "", "write the fragments to this file")
	uploadCmd.Flags().BoolVar(&uploadNoStore, "no-store", false, "do not store the result in the database")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := config.ValidateAPI(cfg.API); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if uploadNoStore && uploadOut == "" {
		return fmt.Errorf("--no-store needs --out, or the result is discarded")
	}

	client := newAPIClient(nil)
	frags, err := client.UploadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "converted %s: id %s, %d fragments, %s\n",
		args[0], frags.ID, frags.Count, humanize.Bytes(uint64(len(frags.Data))))

	if uploadOut != "" {
		if err := os.WriteFile(uploadOut, frags.Data, 0o600); err != nil {
			return fmt.Errorf("writing fragments: %w", err)
		}
		_, _ = fmt.Fprintf(out, "wrote %s\n", uploadOut)
	}
	if uploadNoStore {
		return nil
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	err = db.Fragments().Put(cmd.Context(), sqlite.Record{
		Key:            sqlite.LastKey,
		ModelID:        frags.ID,
		FragmentsCount: frags.Count,
		Source:         "api:" + frags.ID,
		Data:           frags.Data,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "stored as the last model in %s\n", db.Path())
	return nil
}
