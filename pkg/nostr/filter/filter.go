package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tag"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
)

// T is a query where one or all elements can be filled in.
//
// Most of it is normal stuff but the Tags are a special case because the Go
// encode/json will not do what the wire format requires, which is to unwrap
// each tag key into a field of the enclosing object with a '#' prefix:
//
//	Tags: {K1: vals1, K2: vals2}
//
// must be rendered as
//
//	"#K1": vals1
//	"#K2": vals2
//
// so marshalling is written out by hand. The same function keeps the field
// order fixed and the tag keys sorted, which makes the encoding usable as a
// cache fingerprint as well.
type T struct {
	IDs     tag.T         `json:"ids,omitempty"`
	Kinds   kinds.T       `json:"kinds,omitempty"`
	Authors tag.T         `json:"authors,omitempty"`
	Tags    TagMap        `json:"-"`
	Since   *timestamp.Tp `json:"since,omitempty"`
	Until   *timestamp.Tp `json:"until,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// TagMap is the set of acceptable values per tag key. The keys here are bare
// ("t", "a"), the '#' prefix is a wire artifact only.
type TagMap map[string]tag.T

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap)
	for i := range t {
		t1[i] = t[i].Clone()
	}
	return
}

// Unrestricted means the filter carries no author and no tag constraint at
// all, so relays will return whatever "most relevant" events they like of the
// given kinds. Results of such a filter must be re-validated against the
// caller's true predicate before acceptance.
func (f *T) Unrestricted() bool {
	return len(f.Authors) == 0 && len(f.Tags) == 0
}

func (f *T) MarshalJSON() (b []byte, err error) {
	buf := new(bytes.Buffer)
	buf.WriteByte('{')
	first := true
	field := func(key string, v interface{}) {
		var vb []byte
		if vb, err = json.Marshal(v); err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(buf, "%q:%s", key, vb)
	}
	if len(f.IDs) > 0 {
		field("ids", f.IDs)
	}
	if len(f.Kinds) > 0 {
		field("kinds", f.Kinds.ToIntSlice())
	}
	if len(f.Authors) > 0 {
		field("authors", f.Authors)
	}
	// sorted for deterministic output, Go map iteration isn't
	keys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field("#"+k, f.Tags[k])
	}
	if f.Since != nil {
		field("since", f.Since.T().I64())
	}
	if f.Until != nil {
		field("until", f.Until.T().I64())
	}
	if f.Limit > 0 {
		field("limit", f.Limit)
	}
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON correctly unpacks a JSON encoded T rolling up the '#' tag
// fields as they should be.
func (f *T) UnmarshalJSON(b []byte) (err error) {
	if f == nil {
		return fmt.Errorf("cannot unmarshal into nil filter")
	}
	var raw map[string]json.RawMessage
	if err = json.Unmarshal(b, &raw); err != nil {
		return
	}
	for k, v := range raw {
		switch k {
		case "ids":
			err = json.Unmarshal(v, &f.IDs)
		case "kinds":
			var is []int
			if err = json.Unmarshal(v, &is); err == nil {
				f.Kinds = kinds.FromIntSlice(is)
			}
		case "authors":
			err = json.Unmarshal(v, &f.Authors)
		case "since":
			var ts int64
			if err = json.Unmarshal(v, &ts); err == nil {
				f.Since = timestamp.FromUnix(ts).Ptr()
			}
		case "until":
			var ts int64
			if err = json.Unmarshal(v, &ts); err == nil {
				f.Until = timestamp.FromUnix(ts).Ptr()
			}
		case "limit":
			err = json.Unmarshal(v, &f.Limit)
		default:
			if len(k) > 1 && k[0] == '#' {
				var vals tag.T
				if err = json.Unmarshal(v, &vals); err == nil {
					if f.Tags == nil {
						f.Tags = make(TagMap)
					}
					f.Tags[k[1:]] = vals
				}
			}
			// unknown fields are ignored, relays add their own
		}
		if err != nil {
			return
		}
	}
	return
}

func (f *T) String() string {
	j, _ := json.Marshal(f)
	return string(j)
}

// Fingerprint is the deterministic encoding of the filter, suitable as a map
// key. Two filters with the same predicate produce the same fingerprint.
func (f *T) Fingerprint() string {
	return f.String()
}

// Matches applies the filter predicate locally. This is what makes results
// from unrestricted fallback queries safe to accept, relays that ignore
// filter fields they don't support get their spurious events dropped here.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !f.IDs.Contains(ev.ID.String()) {
		return false
	}
	if f.Kinds != nil && !f.Kinds.Contains(ev.Kind) {
		return false
	}
	if f.Authors != nil && !f.Authors.Contains(ev.PubKey) {
		return false
	}
	for k, v := range f.Tags {
		if v != nil && !ev.Tags.ContainsAny(k, v...) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < f.Since.T() {
		return false
	}
	if f.Until != nil && ev.CreatedAt > f.Until.T() {
		return false
	}
	return true
}

func arePointerValuesEqual[V comparable](a *V, b *V) bool {
	if a == nil && b == nil {
		return true
	}
	if a != nil && b != nil {
		return *a == *b
	}
	return false
}

func Equal(a, b *T) bool {
	// switch is a convenient way to bundle a long list of tests like this:
	switch {
	case !a.Kinds.Equals(b.Kinds),
		!a.IDs.Equals(b.IDs),
		!a.Authors.Equals(b.Authors),
		len(a.Tags) != len(b.Tags),
		!arePointerValuesEqual(a.Since, b.Since),
		!arePointerValuesEqual(a.Until, b.Until),
		a.Limit != b.Limit:

		return false
	}
	for k, av := range a.Tags {
		if bv, ok := b.Tags[k]; !ok {
			return false
		} else if !av.Equals(bv) {
			return false
		}
	}
	return true
}

func (f *T) Clone() (clone *T) {
	clone = &T{
		IDs:     f.IDs.Clone(),
		Authors: f.Authors.Clone(),
		Kinds:   f.Kinds.Clone(),
		Limit:   f.Limit,
		Tags:    f.Tags.Clone(),
		Since:   f.Since.Clone(),
		Until:   f.Until.Clone(),
	}
	return
}
