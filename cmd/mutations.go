package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var mutationsCmd = &cobra.Command{
	Use:   "mutations",
	Short: "List the mutation catalog",
	Long: `List the mutations that guess would try, in order.

With --render each mutation is shown applied to the given header line, with
control bytes escaped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("mutations")
		catalog, err := loadCatalog(cfg.Guess.CatalogFile, names)
		if err != nil {
			return err
		}

		render, _ := cmd.Flags().GetString("render")
		for _, name := range catalog.Names() {
			if render == "" {
				fmt.Fprintln(reportOut, name)
				continue
			}
			out, err := catalog.Render(render, name)
			if err != nil {
				color.New(color.FgRed).Fprintf(reportOut, "%-32s error: %v\n", name, err)
				continue
			}
			fmt.Fprintf(reportOut, "%-32s %s\n", name, strconv.Quote(string(out)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mutationsCmd)

	mutationsCmd.Flags().StringSlice("mutations", nil, "only list these mutations")
	mutationsCmd.Flags().String("render", "", `header line to render each mutation of, e.g. "Content-Length: 0"`)
}
