package kind

// T is the event type in the nostr protocol, the use of the capital T
// signifying type, consistent with Go idiom, the Go standard library, and
// much, conformant, existing code.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

// The event kinds are put in a separate package so they will be referred to
// as `kind.ProfileMetadata` rather than `nostr.KindProfileMetadata`.
// Repeating 'nostr' in these constant names is redundant as they are only
// used in this context, and creating a special type for them makes this
// implicit and enforced by the compiler at compile time.
const (
	// ProfileMetadata is an event type that stores user profile data, pet
	// names, bio, lightning address, etc.
	ProfileMetadata T = 0
	// TextNote is a standard short text note of plain text a la twitter.
	TextNote T = 1
	// FollowList is an event containing a list of pubkeys of users that
	// should be shown as follows in a timeline.
	FollowList T = 3
	// Deletion requests removal of prior events by the same author.
	Deletion T = 5
	// Repost is a verbatim rebroadcast of another event.
	Repost T = 6
	// Reaction is an emoji or +/- response to another event.
	Reaction T = 7

	// TeamJoinRequest is the fitness app's request-to-join note, referencing
	// a FitnessTeam via an a tag.
	TeamJoinRequest T = 1104
	// WorkoutRecord is a completed cardio/strength workout per NIP-101e.
	WorkoutRecord T = 1301

	// ExerciseTemplate is a reusable exercise definition per NIP-101e.
	ExerciseTemplate T = 33401
	// WorkoutTemplate is a reusable workout plan per NIP-101e.
	WorkoutTemplate T = 33402
	// FitnessTeam is the parameterized-replaceable team record the app's
	// discovery screens list and search.
	FitnessTeam T = 33404
)

// IsParameterizedReplaceable means the relay keeps only the newest event per
// (pubkey, kind, d tag) triple, which matters for how hard discovery needs to
// push for completeness versus recency.
func (ki T) IsParameterizedReplaceable() bool {
	return ki >= 30000 && ki < 40000
}

// IsReplaceable events overwrite by (pubkey, kind) on compliant relays.
func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= 10000 && ki < 20000)
}
