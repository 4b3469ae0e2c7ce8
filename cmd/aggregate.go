package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

func newAggregateCmd() *cobra.Command {
	var resources []int64
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recomputes and stores the pageview total of one or more resources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(resources) == 0 {
				return errors.New("at least one --resource is required")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			totals := make([]counter.ResourceTotal, 0, len(resources))
			for _, id := range resources {
				total, err := a.Aggregator.Aggregate(cmd.Context(), id)
				if err != nil {
					return err
				}
				totals = append(totals, total)
			}
			return printJSON(cmd, totals)
		},
	}
	cmd.Flags().Int64SliceVar(&resources, "resource", nil, "resource id to aggregate (repeatable)")
	return cmd
}

func newCountCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Prints the stored pageviews of a path and its trailing-slash form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("--path is required")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Aggregator.CountForPath(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"path": counter.NormalizePath(path), "pageviews": n})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to look up")
	return cmd
}

func newListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists stored paths by pageviews, highest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 || offset < 0 {
				return errors.New("--limit and --offset must be >= 0")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := a.Pageviews.ListPageviews(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}
