package main

import (
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <package|purl>",
	Short: "Build the rated health report of a package",
	Long: `Report fetches registry metadata, download statistics and GitHub signals for
a package and rates each health category. Sources that fail are listed below the
table and rated with the category's fallback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if err := checkOutput(output); err != nil {
			return err
		}

		c, err := newClients()
		if err != nil {
			return err
		}
		defer c.Close()
		r, err := c.reports.Build(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderReport(cmd.OutOrStdout(), r, output)
	},
}

func init() {
	reportCmd.Flags().StringP("output", "o", outputTable, "output format: table, json or yaml")

	rootCmd.AddCommand(reportCmd)
}
