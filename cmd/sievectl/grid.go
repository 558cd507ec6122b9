package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/citysieve/internal/adapter/geoexport"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/pipeline"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the hex candidate grid around a point as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		radius, _ := cmd.Flags().GetFloat64("radius-km")
		spacing, _ := cmd.Flags().GetFloat64("spacing-km")
		out, _ := cmd.Flags().GetString("out")

		centre := domain.GeoPoint{Lat: lat, Lng: lng}
		if err := centre.Validate(); err != nil {
			return err
		}
		candidates, err := domain.GenerateCandidateAreas(centre, radius, spacing)
		if err != nil {
			return fmt.Errorf("generate grid: %w", err)
		}

		data, err := geoexport.Marshal(geoexport.Candidates(candidates))
		if err != nil {
			return err
		}
		if out == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("grid written", "path", out, "candidates", len(candidates))
		return nil
	},
}

func init() {
	gridCmd.Flags().Float64("lat", pipeline.DefaultAnchor.Lat, "centre latitude")
	gridCmd.Flags().Float64("lng", pipeline.DefaultAnchor.Lng, "centre longitude")
	gridCmd.Flags().Float64("radius-km", pipeline.DefaultRadiusKm, "search radius in kilometres")
	gridCmd.Flags().Float64("spacing-km", domain.DefaultDensityPolicy().StandardSpacingKm, "distance between grid points in kilometres")
	gridCmd.Flags().String("out", "", "write GeoJSON to this file instead of stdout")
	rootCmd.AddCommand(gridCmd)
}
