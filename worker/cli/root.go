package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mangatint",
	Short: "mangatint 🎨 - batch colorization for manga pages",
	Long:  "mangatint 🎨 colorizes black and white manga in batches, keeping lineart and lettering intact and the palette consistent across a chapter.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}
