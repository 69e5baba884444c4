package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the npm registry",
	Long: `Search queries the npm registry for packages matching free text. Queries
shorter than two characters return nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if err := checkOutput(output); err != nil {
			return err
		}
		size, _ := cmd.Flags().GetInt("size")
		if size < 1 || size > 50 {
			return fmt.Errorf("--size must be between 1 and 50, got %d", size)
		}

		c, err := newClients()
		if err != nil {
			return err
		}
		defer c.Close()
		results, err := c.registry.Search(cmd.Context(), strings.Join(args, " "), size)
		if err != nil {
			return err
		}
		return renderSearch(cmd.OutOrStdout(), results, output)
	},
}

func init() {
	searchCmd.Flags().Int("size", 10, "maximum number of results (1-50)")
	searchCmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")

	rootCmd.AddCommand(searchCmd)
}
