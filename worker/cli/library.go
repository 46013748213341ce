package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mangatint/worker/config"
	"mangatint/worker/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List library collections and their colorization state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		lib := library.New(cfg.LibraryRoot, zap.NewNop())

		collections, err := lib.Collections()
		if err != nil {
			return err
		}
		if len(collections) == 0 {
			fmt.Fprintf(os.Stdout, "No collections under %s\n", cfg.LibraryRoot)
			return nil
		}

		for _, c := range collections {
			marker := " "
			if c.HasColored {
				marker = "*"
			}
			fmt.Fprintf(os.Stdout, "%s %-32s %d chapters\n", marker, c.Name, len(c.Chapters))
		}
		fmt.Fprintln(os.Stdout, "\n* has colorized output")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(libraryCmd)
}
