package domain

// ScoringWeights holds one weight per scoring dimension. Every weight is in
// [0,1]; Commute is the share of a five-day week spent commuting.
type ScoringWeights struct {
	Supermarkets     float64 `json:"supermarkets"`
	HighStreet       float64 `json:"highStreet"`
	PubsBars         float64 `json:"pubsBars"`
	RestaurantsCafes float64 `json:"restaurantsCafes"`
	ParksGreenSpaces float64 `json:"parksGreenSpaces"`
	GymsLeisure      float64 `json:"gymsLeisure"`
	Healthcare       float64 `json:"healthcare"`
	LibrariesCulture float64 `json:"librariesCulture"`
	PublicTransport  float64 `json:"publicTransport"`
	TrainStation     float64 `json:"trainStation"`
	PeaceAndQuiet    float64 `json:"peaceAndQuiet"`
	FamilyProximity  float64 `json:"familyProximity"`
	SocialScene      float64 `json:"socialScene"`
	Commute          float64 `json:"commute"`
}

// NormalizeLikert maps a 1–5 rating onto [0,1]. Ratings outside the scale
// are clamped.
func NormalizeLikert(v Likert) float64 {
	return clamp01(float64(v-1) / 4)
}

// ExtractWeights converts survey answers into scoring weights.
func ExtractWeights(p UserPreferenceProfile) ScoringWeights {
	return ScoringWeights{
		Supermarkets:     NormalizeLikert(p.Lifestyle.Supermarkets),
		HighStreet:       NormalizeLikert(p.Lifestyle.HighStreet),
		PubsBars:         NormalizeLikert(p.Lifestyle.PubsBars),
		RestaurantsCafes: NormalizeLikert(p.Lifestyle.RestaurantsCafes),
		ParksGreenSpaces: NormalizeLikert(p.Lifestyle.ParksGreenSpaces),
		GymsLeisure:      NormalizeLikert(p.Lifestyle.GymsLeisure),
		Healthcare:       NormalizeLikert(p.Lifestyle.Healthcare),
		LibrariesCulture: NormalizeLikert(p.Lifestyle.LibrariesCulture),
		PublicTransport:  NormalizeLikert(p.Transport.PublicTransportReliance),
		TrainStation:     NormalizeLikert(p.Transport.TrainStationImportance),
		PeaceAndQuiet:    NormalizeLikert(p.Environment.PeaceAndQuiet),
		FamilyProximity:  NormalizeLikert(p.Family.FamilyProximityImportance),
		SocialScene:      NormalizeLikert(p.Family.SocialImportance),
		Commute:          clamp01(float64(p.Commute.DaysPerWeek) / 5),
	}
}
