package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/couchcryptid/citysieve/internal/domain"
)

func formatScoredAreas(out io.Writer, areas []domain.ScoredArea) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tNAME\tOUTCODE\tSCORE\tTYPE\tCOMMUTE\tHIGHLIGHTS")
	_, _ = fmt.Fprintln(w, "----\t----\t-------\t-----\t----\t-------\t----------")

	for i, a := range areas {
		commute := "-"
		if a.Area.CommuteEstimate != nil {
			commute = domain.FormatMinutes(*a.Area.CommuteEstimate)
		}
		highlights := make([]string, len(a.Highlights))
		for j, h := range a.Highlights {
			highlights[j] = string(h)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\t%s\t%s\t%s\n",
			i+1,
			a.Area.Name,
			dashIfEmpty(a.Area.Outcode),
			a.Score,
			a.Area.Environment.Type,
			commute,
			strings.Join(highlights, ", "),
		)
	}
	_ = w.Flush()
}

func formatRejected(out io.Writer, rejected []domain.RejectedArea) {
	if len(rejected) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d areas rejected by hard filters\n", len(rejected))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range rejected {
		reasons := make([]string, len(r.Reasons))
		for i, reason := range r.Reasons {
			reasons[i] = string(reason)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Area.Name, strings.Join(reasons, ", "))
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
