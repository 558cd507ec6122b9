package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidPreferences wraps every preference validation failure.
var ErrInvalidPreferences = errors.New("invalid preferences")

// Likert is a 1–5 importance rating. Zero means unanswered.
type Likert int

const (
	LikertLow     Likert = 2
	LikertNeutral Likert = 3
	LikertHigh    Likert = 5
)

// Location is a labelled point supplied by the user.
type Location struct {
	Label string  `json:"label,omitempty"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// Point drops the label.
func (l Location) Point() GeoPoint { return GeoPoint{Lat: l.Lat, Lng: l.Lng} }

// CommutePreferences describe the user's regular journey to work.
type CommutePreferences struct {
	WorkLocation         *Location     `json:"workLocation,omitempty"`
	DaysPerWeek          int           `json:"daysPerWeek"`
	MaxCommuteTime       float64       `json:"maxCommuteTime"`
	CommuteTimeIsHardCap bool          `json:"commuteTimeIsHardCap"`
	Modes                []CommuteMode `json:"commuteModes"`
}

// FamilyPreferences cover proximity to family and social life.
type FamilyPreferences struct {
	FamilyLocation            *Location `json:"familyLocation,omitempty"`
	FamilyProximityImportance Likert    `json:"familyProximityImportance"`
	SocialImportance          Likert    `json:"socialImportance"`
}

// LifestylePreferences rate each amenity category.
type LifestylePreferences struct {
	Supermarkets     Likert `json:"supermarkets"`
	HighStreet       Likert `json:"highStreet"`
	PubsBars         Likert `json:"pubsBars"`
	RestaurantsCafes Likert `json:"restaurantsCafes"`
	ParksGreenSpaces Likert `json:"parksGreenSpaces"`
	GymsLeisure      Likert `json:"gymsLeisure"`
	Healthcare       Likert `json:"healthcare"`
	LibrariesCulture Likert `json:"librariesCulture"`
}

// TransportPreferences rate reliance on public transport.
type TransportPreferences struct {
	PublicTransportReliance Likert `json:"publicTransportReliance"`
	TrainStationImportance  Likert `json:"trainStationImportance"`
}

// EnvironmentPreferences restrict and shape where the user wants to live.
type EnvironmentPreferences struct {
	AreaTypes        []AreaType `json:"areaTypes,omitempty"`
	PeaceAndQuiet    Likert     `json:"peaceAndQuiet"`
	ExcludeAreas     []string   `json:"excludeAreas,omitempty"`
	ConsideringAreas []string   `json:"consideringAreas,omitempty"`
}

// UserPreferenceProfile is a snapshot of the survey answers.
type UserPreferenceProfile struct {
	Commute     CommutePreferences     `json:"commute"`
	Family      FamilyPreferences      `json:"family"`
	Lifestyle   LifestylePreferences   `json:"lifestyle"`
	Transport   TransportPreferences   `json:"transport"`
	Environment EnvironmentPreferences `json:"environment"`
}

type namedLikert struct {
	name  string
	value *Likert
}

// likerts returns pointers to every rating in a fixed order.
func (p *UserPreferenceProfile) likerts() []namedLikert {
	return []namedLikert{
		{"family.familyProximityImportance", &p.Family.FamilyProximityImportance},
		{"family.socialImportance", &p.Family.SocialImportance},
		{"lifestyle.supermarkets", &p.Lifestyle.Supermarkets},
		{"lifestyle.highStreet", &p.Lifestyle.HighStreet},
		{"lifestyle.pubsBars", &p.Lifestyle.PubsBars},
		{"lifestyle.restaurantsCafes", &p.Lifestyle.RestaurantsCafes},
		{"lifestyle.parksGreenSpaces", &p.Lifestyle.ParksGreenSpaces},
		{"lifestyle.gymsLeisure", &p.Lifestyle.GymsLeisure},
		{"lifestyle.healthcare", &p.Lifestyle.Healthcare},
		{"lifestyle.librariesCulture", &p.Lifestyle.LibrariesCulture},
		{"transport.publicTransportReliance", &p.Transport.PublicTransportReliance},
		{"transport.trainStationImportance", &p.Transport.TrainStationImportance},
		{"environment.peaceAndQuiet", &p.Environment.PeaceAndQuiet},
	}
}

// WithDefaults returns a copy with unanswered ratings set to neutral.
func (p UserPreferenceProfile) WithDefaults() UserPreferenceProfile {
	out := p
	for _, l := range out.likerts() {
		if *l.value == 0 {
			*l.value = LikertNeutral
		}
	}
	return out
}

// Validate checks ranges and enumerations, naming the first offending field.
func (p UserPreferenceProfile) Validate() error {
	for _, l := range p.likerts() {
		if *l.value < 1 || *l.value > 5 {
			return fmt.Errorf("%w: %s must be between 1 and 5, got %d", ErrInvalidPreferences, l.name, *l.value)
		}
	}
	c := p.Commute
	if c.DaysPerWeek < 0 || c.DaysPerWeek > 5 {
		return fmt.Errorf("%w: commute.daysPerWeek must be between 0 and 5, got %d", ErrInvalidPreferences, c.DaysPerWeek)
	}
	if !isFinite(c.MaxCommuteTime) || c.MaxCommuteTime < 0 {
		return fmt.Errorf("%w: commute.maxCommuteTime must be non-negative, got %v", ErrInvalidPreferences, c.MaxCommuteTime)
	}
	for _, m := range c.Modes {
		if !m.Valid() {
			return fmt.Errorf("%w: unknown commute mode %q", ErrInvalidPreferences, m)
		}
	}
	if err := validateLocation("commute.workLocation", c.WorkLocation); err != nil {
		return err
	}
	if err := validateLocation("family.familyLocation", p.Family.FamilyLocation); err != nil {
		return err
	}
	for _, t := range p.Environment.AreaTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown area type %q", ErrInvalidPreferences, t)
		}
	}
	return nil
}

func validateLocation(name string, l *Location) error {
	if l == nil {
		return nil
	}
	if err := l.Point().Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPreferences, name, err)
	}
	return nil
}

// Anchor returns the point a search is centred on: the work location, else
// the family location, else fallback.
func (p UserPreferenceProfile) Anchor(fallback GeoPoint) GeoPoint {
	switch {
	case p.Commute.WorkLocation != nil:
		return p.Commute.WorkLocation.Point()
	case p.Family.FamilyLocation != nil:
		return p.Family.FamilyLocation.Point()
	default:
		return fallback
	}
}

// Priority keys accepted by the quick survey.
const (
	PrioritySupermarkets     = "supermarkets"
	PriorityHighStreet       = "highStreet"
	PriorityPubsBars         = "pubsBars"
	PriorityRestaurantsCafes = "restaurantsCafes"
	PriorityParksGreenSpaces = "parksGreenSpaces"
	PriorityGymsLeisure      = "gymsLeisure"
	PriorityHealthcare       = "healthcare"
	PriorityLibrariesCulture = "librariesCulture"
	PriorityPublicTransport  = "publicTransportReliance"
	PriorityTrainStation     = "trainStationImportance"
	PriorityPeaceAndQuiet    = "peaceAndQuiet"
	PriorityFamilyProximity  = "familyProximityImportance"
	PrioritySocial           = "socialImportance"
)

// QuickSurveyAnswers is the short form of the survey.
type QuickSurveyAnswers struct {
	WorkLocation   *Location     `json:"workLocation,omitempty"`
	IsRemote       bool          `json:"isRemote"`
	CommuteModes   []CommuteMode `json:"commuteModes"`
	MaxCommuteTime float64       `json:"maxCommuteTime"`
	AreaType       AreaType      `json:"areaType,omitempty"`
	TopPriorities  []string      `json:"topPriorities"`
}

// BuildQuickProfile expands quick answers into a full profile. Selected
// priorities are rated high and the rest low; with no selection everything is
// neutral.
func BuildQuickProfile(a QuickSurveyAnswers) UserPreferenceProfile {
	sel := make(map[string]bool, len(a.TopPriorities))
	for _, k := range a.TopPriorities {
		sel[k] = true
	}
	likert := func(key string) Likert {
		switch {
		case sel[key]:
			return LikertHigh
		case len(sel) == 0:
			return LikertNeutral
		default:
			return LikertLow
		}
	}

	p := UserPreferenceProfile{
		Commute: CommutePreferences{
			DaysPerWeek:          5,
			MaxCommuteTime:       a.MaxCommuteTime,
			CommuteTimeIsHardCap: true,
			Modes:                a.CommuteModes,
		},
		Family: FamilyPreferences{
			FamilyProximityImportance: likert(PriorityFamilyProximity),
			SocialImportance:          likert(PrioritySocial),
		},
		Lifestyle: LifestylePreferences{
			Supermarkets:     likert(PrioritySupermarkets),
			HighStreet:       likert(PriorityHighStreet),
			PubsBars:         likert(PriorityPubsBars),
			RestaurantsCafes: likert(PriorityRestaurantsCafes),
			ParksGreenSpaces: likert(PriorityParksGreenSpaces),
			GymsLeisure:      likert(PriorityGymsLeisure),
			Healthcare:       likert(PriorityHealthcare),
			LibrariesCulture: likert(PriorityLibrariesCulture),
		},
		Transport: TransportPreferences{
			PublicTransportReliance: likert(PriorityPublicTransport),
			TrainStationImportance:  likert(PriorityTrainStation),
		},
		Environment: EnvironmentPreferences{
			PeaceAndQuiet: likert(PriorityPeaceAndQuiet),
		},
	}
	if a.IsRemote {
		p.Commute.DaysPerWeek = 0
	} else {
		p.Commute.WorkLocation = a.WorkLocation
	}
	if a.AreaType != "" {
		p.Environment.AreaTypes = []AreaType{a.AreaType}
	}
	return p
}
