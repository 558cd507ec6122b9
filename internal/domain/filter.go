package domain

import "strings"

// RejectionReason names a hard filter a profile failed.
type RejectionReason string

const (
	ReasonCommute      RejectionReason = "commute"
	ReasonAreaType     RejectionReason = "areaType"
	ReasonExcludedArea RejectionReason = "excludedArea"
)

// RejectedArea is a profile that failed one or more hard filters.
type RejectedArea struct {
	Area    AreaProfile       `json:"area"`
	Reasons []RejectionReason `json:"reasons"`
}

// FilterResult splits profiles into those that pass every hard filter and
// those that do not, preserving input order in both.
type FilterResult struct {
	Passed   []AreaProfile  `json:"passed"`
	Rejected []RejectedArea `json:"rejected"`
}

// FilterStatus is the per-candidate progress state shown while searching.
type FilterStatus string

const (
	StatusPending  FilterStatus = "pending"
	StatusChecked  FilterStatus = "checked"
	StatusFiltered FilterStatus = "filtered"
)

// ApplyHardFiltersWithReasons evaluates every rule for every profile and
// records all rules that failed.
func ApplyHardFiltersWithReasons(areas []AreaProfile, prefs UserPreferenceProfile) FilterResult {
	res := FilterResult{
		Passed:   []AreaProfile{},
		Rejected: []RejectedArea{},
	}
	excluded := lowerNonEmpty(prefs.Environment.ExcludeAreas)
	for _, a := range areas {
		reasons := rejectionReasons(a, prefs, excluded)
		if len(reasons) == 0 {
			res.Passed = append(res.Passed, a)
			continue
		}
		res.Rejected = append(res.Rejected, RejectedArea{Area: a, Reasons: reasons})
	}
	return res
}

// ApplyHardFilters returns only the profiles that pass every hard filter.
func ApplyHardFilters(areas []AreaProfile, prefs UserPreferenceProfile) []AreaProfile {
	return ApplyHardFiltersWithReasons(areas, prefs).Passed
}

// GetFilterStatus classifies a single profile as checked or filtered.
func GetFilterStatus(area AreaProfile, prefs UserPreferenceProfile) FilterStatus {
	if len(ApplyHardFilters([]AreaProfile{area}, prefs)) > 0 {
		return StatusChecked
	}
	return StatusFiltered
}

func rejectionReasons(a AreaProfile, prefs UserPreferenceProfile, excluded []string) []RejectionReason {
	var reasons []RejectionReason

	c := prefs.Commute
	if c.CommuteTimeIsHardCap && a.CommuteEstimate != nil && *a.CommuteEstimate > c.MaxCommuteTime {
		reasons = append(reasons, ReasonCommute)
	}

	if !areaTypeAccepted(a.Environment.Type, prefs.Environment.AreaTypes) {
		reasons = append(reasons, ReasonAreaType)
	}

	if len(excluded) > 0 {
		name := strings.ToLower(a.Name)
		for _, ex := range excluded {
			if strings.Contains(name, ex) {
				reasons = append(reasons, ReasonExcludedArea)
				break
			}
		}
	}
	return reasons
}

// areaTypeAccepted allows the selected bands and their direct neighbours.
func areaTypeAccepted(t AreaType, selected []AreaType) bool {
	if len(selected) == 0 {
		return true
	}
	idx := t.Index()
	for _, s := range selected {
		d := idx - s.Index()
		if idx >= 0 && s.Index() >= 0 && d >= -1 && d <= 1 {
			return true
		}
	}
	return false
}

func lowerNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	return out
}
