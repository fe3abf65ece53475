package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/geography"
)

var (
	boundariesLevel    string
	boundariesNational bool
	boundariesOut      string
)

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Build and export the boundary set for a level as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := geography.ParseLevel(boundariesLevel)
		if err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context(), "boundaries")
		if err != nil {
			return err
		}

		set, err := env.Pipeline.Boundaries(level, boundariesNational)
		if err != nil {
			return err
		}

		data, err := boundary.FeatureCollection(set.Regions).MarshalJSON()
		if err != nil {
			return eris.Wrap(err, "encode boundaries")
		}
		if boundariesOut == "" || boundariesOut == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(boundariesOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", boundariesOut)
		}

		fmt.Fprintf(os.Stderr, "Wrote %d regions at %s to %s\n", set.Len(), level, boundariesOut)
		if len(set.Omitted) > 0 {
			fmt.Fprintf(os.Stderr, "Omitted (union failed): %v\n", set.Omitted)
		}
		return nil
	},
}

func init() {
	boundariesCmd.Flags().StringVar(&boundariesLevel, "level", "", "level to build (ITL1, ITL2, ITL3, LA, MCA)")
	boundariesCmd.Flags().BoolVar(&boundariesNational, "national", false, "merge English ITL1 regions into England")
	boundariesCmd.Flags().StringVar(&boundariesOut, "out", "-", "output GeoJSON file, - for stdout")
	_ = boundariesCmd.MarkFlagRequired("level")
	rootCmd.AddCommand(boundariesCmd)
}
