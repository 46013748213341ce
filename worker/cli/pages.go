package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mangatint/worker/batch"
	"mangatint/worker/resolver"
)

var pagesCmd = &cobra.Command{
	Use:   "pages <path>...",
	Short: "List the pages a colorize run would process, in order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items := make([]batch.Item, 0, len(args))
		for _, path := range args {
			kind, err := resolver.DetectKind(path)
			if err != nil {
				return err
			}
			items = append(items, batch.Item{Kind: kind, Path: path})
		}

		res, err := resolver.New(zap.NewNop()).Resolve(items)
		if err != nil {
			return err
		}
		defer res.Cleanup()

		for i, page := range res.Pages {
			fmt.Fprintf(os.Stdout, "%4d  %s\n", i+1, page.Path)
		}
		fmt.Fprintf(os.Stdout, "%d pages\n", len(res.Pages))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pagesCmd)
}
