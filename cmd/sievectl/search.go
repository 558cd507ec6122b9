package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/citysieve/internal/adapter/geoexport"
	"github.com/couchcryptid/citysieve/internal/app"
	"github.com/couchcryptid/citysieve/internal/domain"
	"github.com/couchcryptid/citysieve/internal/observability"
	"github.com/couchcryptid/citysieve/internal/pipeline"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a live neighbourhood search",
	Long:  "Builds the land-filtered candidate grid, enriches every area from OpenStreetMap and postcodes.io, then prints the top matches.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("prefs")
		radius, _ := cmd.Flags().GetFloat64("radius-km")
		inner, _ := cmd.Flags().GetFloat64("inner-radius-km")
		quick, _ := cmd.Flags().GetBool("quick")
		format, _ := cmd.Flags().GetString("format")

		req, err := readSearchRequest(path, quick)
		if err != nil {
			return err
		}
		req.RadiusKm = radius
		req.InnerRadiusKm = inner

		metrics := observability.NewMetrics()
		searcher := app.NewStack(cfg, logger, metrics).Searcher(cfg, logger, metrics)

		result, err := searcher.Search(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if result.Partial {
			logger.Warn("enrichment budget exhausted, results are partial", "enriched", result.Enriched, "candidates", result.TotalCandidates)
		}

		out := cmd.OutOrStdout()
		switch format {
		case "json":
			return writeJSON(out, result)
		case "geojson":
			data, err := geoexport.Marshal(geoexport.ScoredAreas(result.Top))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		case "table":
			_, _ = fmt.Fprintf(out, "run %s: %d candidates, %d enriched, %d rejected\n\n",
				result.RunID, result.TotalCandidates, result.Enriched, len(result.Rejected))
			formatScoredAreas(out, result.Top)
			return nil
		default:
			return fmt.Errorf("unknown format %q", format)
		}
	},
}

func init() {
	searchCmd.Flags().String("prefs", "", "JSON file with a preference profile, or quick answers with --quick")
	_ = searchCmd.MarkFlagRequired("prefs")
	searchCmd.Flags().Bool("quick", false, "treat --prefs as quick-survey answers")
	searchCmd.Flags().Float64("radius-km", 0, "search radius in kilometres (0 uses SEARCH_RADIUS_KM)")
	searchCmd.Flags().Float64("inner-radius-km", 0, "exclude candidates within this distance of the anchor")
	searchCmd.Flags().String("format", "table", "output format: table, json or geojson")
	rootCmd.AddCommand(searchCmd)
}

func readSearchRequest(path string, quick bool) (pipeline.SearchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.SearchRequest{}, fmt.Errorf("read %s: %w", path, err)
	}
	if quick {
		var answers domain.QuickSurveyAnswers
		if err := json.Unmarshal(data, &answers); err != nil {
			return pipeline.SearchRequest{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return pipeline.SearchRequest{Mode: pipeline.ModeQuick, Preferences: domain.BuildQuickProfile(answers)}, nil
	}
	var prefs domain.UserPreferenceProfile
	if err := json.Unmarshal(data, &prefs); err != nil {
		return pipeline.SearchRequest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return pipeline.SearchRequest{Mode: pipeline.ModeFull, Preferences: prefs}, nil
}
