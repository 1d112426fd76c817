package rescache

import (
	"testing"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/aggregator"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/eventid"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/strategy"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tag"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultOf(ids ...string) *aggregator.Result {
	r := &aggregator.Result{}
	pad := "0000000000000000000000000000000000000000000000000000000000000000"
	for _, id := range ids {
		r.Events = append(r.Events, &event.T{ID: eventid.T(pad[:64-len(id)] + id)})
	}
	return r
}

func TestGetBeforeAndAfterExpiry(t *testing.T) {
	mock := clock.NewMock()
	c := NewWithClock(time.Minute, mock)
	c.Put("k", resultOf("aa"))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Len(t, got.Events, 1)

	mock.Add(59 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	mock.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLastWriteWins(t *testing.T) {
	c := NewWithClock(time.Minute, clock.NewMock())
	c.Put("k", resultOf("aa"))
	c.Put("k", resultOf("bb", "cc"))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Len(t, got.Events, 2)
}

func TestHitsAreIsolatedFromCallerMutation(t *testing.T) {
	c := NewWithClock(time.Minute, clock.NewMock())
	c.Put("k", resultOf("aa"))

	first, ok := c.Get("k")
	require.True(t, ok)
	first.Events = append(first.Events, resultOf("bb").Events...)
	first.RelayStats["wss://rogue.example"] = 9

	second, ok := c.Get("k")
	require.True(t, ok)
	assert.Len(t, second.Events, 1)
	assert.Empty(t, second.RelayStats)
}

func TestInvalidate(t *testing.T) {
	c := NewWithClock(time.Minute, clock.NewMock())
	c.Put("k", resultOf("aa"))
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestPurgeSweepsOnlyExpired(t *testing.T) {
	mock := clock.NewMock()
	c := NewWithClock(time.Minute, mock)
	c.Put("old", resultOf("aa"))
	mock.Add(30 * time.Second)
	c.Put("new", resultOf("bb"))
	mock.Add(45 * time.Second)

	c.Purge()
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestPutTTLOverridesDefault(t *testing.T) {
	mock := clock.NewMock()
	c := NewWithClock(time.Minute, mock)
	c.PutTTL("k", resultOf("aa"), 5*time.Second)
	mock.Add(6 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestKeyCoversWholeRequest(t *testing.T) {
	base := strategy.Request{
		Kinds:       kinds.T{kind.WorkoutRecord},
		Authors:     tag.T{"deadbeef"},
		Tags:        filter.TagMap{"t": {"running"}},
		TargetCount: 50,
	}
	same := base
	assert.Equal(t, Key(base), Key(same))

	differentTarget := base
	differentTarget.TargetCount = 100
	assert.NotEqual(t, Key(base), Key(differentTarget))

	differentKind := base
	differentKind.Kinds = kinds.T{kind.FitnessTeam}
	assert.NotEqual(t, Key(base), Key(differentKind))

	differentTag := base
	differentTag.Tags = filter.TagMap{"t": {"cycling"}}
	assert.NotEqual(t, Key(base), Key(differentTag))
}
