package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/citysieve/internal/domain"
)

// analyticsPrecision is the number of decimal places kept on coordinates in
// published events (about 100 m).
const analyticsPrecision = 3

// SearchRunEvent is the analytics summary of a completed search. Coordinates
// are coarsened and location labels removed.
type SearchRunEvent struct {
	RunID           string                       `json:"runId"`
	Mode            string                       `json:"mode"`
	Preferences     domain.UserPreferenceProfile `json:"preferences"`
	TopResults      []TopResultSummary           `json:"topResults"`
	TotalCandidates int                          `json:"totalCandidates"`
	RejectedCount   int                          `json:"rejectedCount"`
	PassedCount     int                          `json:"passedCount"`
	RadiusKm        float64                      `json:"radiusKm"`
	InnerRadiusKm   float64                      `json:"innerRadiusKm,omitempty"`
	Partial         bool                         `json:"partial,omitempty"`
	CompletedAt     time.Time                    `json:"completedAt"`
}

// TopResultSummary is one ranked area in a SearchRunEvent.
type TopResultSummary struct {
	Name            string             `json:"name"`
	Outcode         string             `json:"outcode,omitempty"`
	Score           float64            `json:"score"`
	Coordinates     domain.GeoPoint    `json:"coordinates"`
	Highlights      []domain.Dimension `json:"highlights"`
	CommuteEstimate *float64           `json:"commuteEstimate,omitempty"`
}

// NewSearchRunEvent summarizes a search result for publishing.
// PassedCount counts every area that passed the hard filters, ranked or not.
func NewSearchRunEvent(r SearchResult) SearchRunEvent {
	top := make([]TopResultSummary, len(r.Top))
	for i, s := range r.Top {
		top[i] = TopResultSummary{
			Name:            s.Area.Name,
			Outcode:         s.Area.Outcode,
			Score:           s.Score,
			Coordinates:     s.Area.Coordinates.Rounded(analyticsPrecision),
			Highlights:      s.Highlights,
			CommuteEstimate: roundedMinutes(s.Area.CommuteEstimate),
		}
	}

	return SearchRunEvent{
		RunID:           r.RunID,
		Mode:            r.Mode,
		Preferences:     sanitizePreferences(r.Preferences),
		TopResults:      top,
		TotalCandidates: r.TotalCandidates,
		RejectedCount:   len(r.Rejected),
		PassedCount:     len(r.Top) + len(r.PassedButNotTop),
		RadiusKm:        r.RadiusKm,
		InnerRadiusKm:   r.InnerRadiusKm,
		Partial:         r.Partial,
		CompletedAt:     r.CompletedAt,
	}
}

// EncodeSearchRunEvent serializes an event into an output message keyed by
// run id.
func EncodeSearchRunEvent(e SearchRunEvent) (OutputMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return OutputMessage{}, fmt.Errorf("serialize search run event: %w", err)
	}
	return OutputMessage{
		Key:   []byte(e.RunID),
		Value: data,
		Headers: map[string]string{
			"mode":         e.Mode,
			"completed_at": e.CompletedAt.Format(time.RFC3339),
		},
	}, nil
}

func sanitizePreferences(p domain.UserPreferenceProfile) domain.UserPreferenceProfile {
	p.Commute.WorkLocation = sanitizeLocation(p.Commute.WorkLocation)
	p.Family.FamilyLocation = sanitizeLocation(p.Family.FamilyLocation)
	return p
}

func sanitizeLocation(l *domain.Location) *domain.Location {
	if l == nil {
		return nil
	}
	pt := l.Point().Rounded(analyticsPrecision)
	return &domain.Location{Lat: pt.Lat, Lng: pt.Lng}
}

func roundedMinutes(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v)
	return &r
}
