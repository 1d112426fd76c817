package event

import (
	"encoding/hex"
	"encoding/json"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/eventid"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tags"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
	"github.com/minio/sha256-simd"
)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// T is the primary datatype of nostr. This is the form of the structure that
// defines its JSON string based format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID eventid.T `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash. Discovery carries it opaque;
	// producing and checking signatures belongs to the external signer.
	Sig string `json:"sig"`
}

// Ascending is a slice of events that sorts in ascending chronological order
type Ascending []*T

func (ev Ascending) Len() int           { return len(ev) }
func (ev Ascending) Less(i, j int) bool { return ev[i].CreatedAt < ev[j].CreatedAt }
func (ev Ascending) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }

// Descending sorts a slice of events in reverse chronological order (newest
// first)
type Descending []*T

func (e Descending) Len() int           { return len(e) }
func (e Descending) Less(i, j int) bool { return e[i].CreatedAt > e[j].CreatedAt }
func (e Descending) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

// Serialize renders the canonical form of the event as defined in NIP-01:
//
//	[0,pubkey,created_at,kind,tags,content]
//
// This is the byte string the event ID is the hash of.
func (ev *T) Serialize() (b []byte) {
	b, _ = json.Marshal([]interface{}{
		0,
		ev.PubKey,
		ev.CreatedAt.I64(),
		ev.Kind.ToInt(),
		ev.Tags,
		ev.Content,
	})
	return
}

// GetID computes the event ID from the canonical serialization.
func (ev *T) GetID() eventid.T {
	return eventid.T(hex.EncodeToString(Hash(ev.Serialize())))
}

// CheckID confirms the claimed ID matches the content hash. Events from
// relays that fail this are dropped as malformed, they are never an error.
func (ev *T) CheckID() bool {
	return ev.ID == ev.GetID()
}

func (ev *T) String() string {
	b, _ := json.Marshal(ev)
	return string(b)
}
