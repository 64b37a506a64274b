package types

// OccasionKind names a reason to send a notification. The order of
// AllOccasionKinds is the order a run processes them in.
type OccasionKind string

const (
	OccasionBirthday    OccasionKind = "birthday"
	OccasionAnniversary OccasionKind = "anniversary"
	OccasionFestival    OccasionKind = "festival"
	OccasionCustom      OccasionKind = "custom"
)

// AllOccasionKinds lists every kind in processing order.
var AllOccasionKinds = []OccasionKind{
	OccasionBirthday,
	OccasionAnniversary,
	OccasionFestival,
	OccasionCustom,
}

// Occasion key literals and prefixes stored in the send log.
const (
	KeyBirthday       = "bday"
	KeyAnniversary    = "workanni"
	keyFestivalPrefix = "festival-"
	keyCustomPrefix   = "custom-"
)

// FestivalKey returns the occasion key for a festival.
func FestivalKey(name string) string {
	return keyFestivalPrefix + name
}

// CustomKey returns the occasion key for a custom campaign.
func CustomKey(id string) string {
	return keyCustomPrefix + id
}
