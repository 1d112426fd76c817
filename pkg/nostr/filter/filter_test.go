package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tag"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tags"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	f := &filter.T{
		Kinds:   kinds.T{kind.FitnessTeam, kind.WorkoutRecord},
		Authors: tag.T{"deadbeef"},
		Tags:    filter.TagMap{"t": tag.T{"running", "cycling"}},
		Since:   timestamp.T(1000).Ptr(),
		Until:   timestamp.T(2000).Ptr(),
		Limit:   50,
	}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	require.Equal(t,
		`{"kinds":[33404,1301],"authors":["deadbeef"],`+
			`"#t":["running","cycling"],"since":1000,"until":2000,"limit":50}`,
		string(b))

	var f2 filter.T
	require.NoError(t, json.Unmarshal(b, &f2))
	require.True(t, filter.Equal(f, &f2))
	require.Equal(t, f.Fingerprint(), f2.Fingerprint())
}

func TestTagKeysSortedInFingerprint(t *testing.T) {
	a := &filter.T{Tags: filter.TagMap{
		"t": tag.T{"x"}, "a": tag.T{"y"}, "p": tag.T{"z"},
	}}
	b := &filter.T{Tags: filter.TagMap{
		"p": tag.T{"z"}, "a": tag.T{"y"}, "t": tag.T{"x"},
	}}
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestMatches(t *testing.T) {
	ev := &event.T{
		ID:        "00ff",
		PubKey:    "author1",
		CreatedAt: 1500,
		Kind:      kind.WorkoutRecord,
		Tags:      tags.T{tag.T{"t", "running"}, tag.T{"d", "w1"}},
	}
	cases := []struct {
		name string
		f    *filter.T
		want bool
	}{
		{"kind and author", &filter.T{
			Kinds:   kinds.T{kind.WorkoutRecord},
			Authors: tag.T{"author1"},
		}, true},
		{"wrong kind", &filter.T{
			Kinds: kinds.T{kind.FitnessTeam},
		}, false},
		{"wrong author", &filter.T{Authors: tag.T{"someone"}}, false},
		{"tag match", &filter.T{
			Tags: filter.TagMap{"t": tag.T{"cycling", "running"}},
		}, true},
		{"tag miss", &filter.T{
			Tags: filter.TagMap{"t": tag.T{"swimming"}},
		}, false},
		{"inside window", &filter.T{
			Since: timestamp.T(1000).Ptr(), Until: timestamp.T(2000).Ptr(),
		}, true},
		{"before since", &filter.T{Since: timestamp.T(1501).Ptr()}, false},
		{"after until", &filter.T{Until: timestamp.T(1499).Ptr()}, false},
		{"since is inclusive", &filter.T{Since: timestamp.T(1500).Ptr()}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, c.f.Matches(ev))
		})
	}
}

func TestUnrestricted(t *testing.T) {
	require.True(t, (&filter.T{Kinds: kinds.T{1}}).Unrestricted())
	require.False(t, (&filter.T{Authors: tag.T{"x"}}).Unrestricted())
	require.False(t,
		(&filter.T{Tags: filter.TagMap{"t": tag.T{"x"}}}).Unrestricted())
}
