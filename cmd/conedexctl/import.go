package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/conedex/conedex/internal/app/services/importer"
	"github.com/conedex/conedex/internal/cli"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var q importer.Query
	cmd := &cobra.Command{
		Use:   "import-shops",
		Short: "Import ice cream shops from the Places API",
		Long: `Import-shops searches the Places API and creates a pending shop for every
result that is not already known. Imported shops still need admin
verification before they are public.`,
		Example: `  conedexctl import-shops --query "gelato in Portland" --limit 20
  conedexctl import-shops --query "ice cream" --lat 45.52 --lng -122.68 --radius 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			started := time.Now()
			spin := opts.out.Spinner("importing shops")
			spin.Start()
			res, err := rt.App().Importer.ImportFromPlaces(cmd.Context(), q)
			if err != nil {
				spin.Error("import failed")
				return err
			}
			spin.Success("imported %d, skipped %d, failed %d in %s",
				res.Imported, res.Skipped, res.Failed, cli.FormatDuration(time.Since(started)))
			for _, msg := range res.Errors {
				opts.out.Warning("%s", msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Text, "query", "ice cream", "text search")
	cmd.Flags().Float64Var(&q.Lat, "lat", 0, "latitude to bias results toward")
	cmd.Flags().Float64Var(&q.Lng, "lng", 0, "longitude to bias results toward")
	cmd.Flags().Float64Var(&q.RadiusMeters, "radius", 0, "search radius in meters")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum number of places to import")
	return cmd
}
