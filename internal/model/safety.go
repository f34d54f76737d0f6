package model

// SafetyRating is a child-safety classification of a site.
type SafetyRating string

const (
	SafetySafeForAll       SafetyRating = "SAFE_FOR_ALL"
	SafetyParentalGuidance SafetyRating = "PARENTAL_GUIDANCE"
	SafetyTeen             SafetyRating = "TEEN"
	SafetyMature           SafetyRating = "MATURE"
	SafetyBlocked          SafetyRating = "BLOCKED"
	SafetyUnknown          SafetyRating = "UNKNOWN"
)

// RatingDisplay is the human-facing rendering of a SafetyRating.
type RatingDisplay struct {
	Label       string
	Emoji       string
	Description string
}

var ratingDisplays = map[SafetyRating]RatingDisplay{
	SafetySafeForAll:       {Label: "All Ages", Emoji: "👶", Description: "Appropriate for all ages"},
	SafetyParentalGuidance: {Label: "Parental Guidance", Emoji: "👪", Description: "Recommended with supervision"},
	SafetyTeen:             {Label: "Teen (13+)", Emoji: "🧑", Description: "Suitable for teenagers"},
	SafetyMature:           {Label: "Mature (17+)", Emoji: "🔞", Description: "Adult content, not for children"},
	SafetyBlocked:          {Label: "Blocked", Emoji: "🚫", Description: "Known harmful/illegal content"},
	SafetyUnknown:          {Label: "Unknown", Emoji: "❓", Description: "Safety rating unavailable"},
}

// Display returns the label/emoji for r, falling back to Unknown.
func (r SafetyRating) Display() RatingDisplay {
	if d, ok := ratingDisplays[r]; ok {
		return d
	}
	return ratingDisplays[SafetyUnknown]
}

// IsAdult reports whether r should trigger the content warning.
func (r SafetyRating) IsAdult() bool {
	return r == SafetyMature || r == SafetyBlocked
}
