package cmd

import (
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var (
		index int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Imports one report chunk, or every chunk from --index with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if all {
				summaries, err := a.Importer.RunAll(cmd.Context(), index)
				if perr := printJSON(cmd, summaries); perr != nil {
					return perr
				}
				return err
			}
			summary, err := a.Importer.RunChunk(cmd.Context(), index)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "chunk index to import (0-based)")
	cmd.Flags().BoolVar(&all, "all", false, "keep importing until the report is exhausted")
	return cmd
}
