package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/citysieve/internal/domain"
)

// scoreInput is the file format accepted by the score command.
type scoreInput struct {
	Areas       []domain.AreaProfile         `json:"areas"`
	Preferences domain.UserPreferenceProfile `json:"preferences"`
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rescore enriched area profiles offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("input")
		format, _ := cmd.Flags().GetString("format")

		in, err := readScoreInput(path)
		if err != nil {
			return err
		}
		prefs := in.Preferences.WithDefaults()
		if err := prefs.Validate(); err != nil {
			return err
		}

		result := domain.Score(in.Areas, prefs)
		logger.Debug("scored areas", "input", len(in.Areas), "top", len(result.Top), "rejected", len(result.Rejected))

		switch format {
		case "json":
			return writeJSON(cmd.OutOrStdout(), result)
		case "table":
			formatScoredAreas(cmd.OutOrStdout(), result.Top)
			formatRejected(cmd.OutOrStdout(), result.Rejected)
			return nil
		default:
			return fmt.Errorf("unknown format %q", format)
		}
	},
}

func init() {
	scoreCmd.Flags().String("input", "", "JSON file with areas and preferences")
	_ = scoreCmd.MarkFlagRequired("input")
	scoreCmd.Flags().String("format", "table", "output format: table or json")
	rootCmd.AddCommand(scoreCmd)
}

func readScoreInput(path string) (scoreInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoreInput{}, fmt.Errorf("read %s: %w", path, err)
	}
	var in scoreInput
	if err := json.Unmarshal(data, &in); err != nil {
		return scoreInput{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return in, nil
}
