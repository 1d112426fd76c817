package envelopes

import (
	"encoding/json"
	"testing"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/stretchr/testify/require"
)

func TestReqMarshal(t *testing.T) {
	env := &Req{
		SubscriptionID: "abcd:1",
		Filters: filters.T{
			{Kinds: kinds.T{kind.FitnessTeam}, Limit: 50},
		},
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	require.Equal(t, `["REQ","abcd:1",{"kinds":[33404],"limit":50}]`, string(b))
}

func TestCloseMarshal(t *testing.T) {
	b, err := json.Marshal(&Close{SubscriptionID: "abcd:1"})
	require.NoError(t, err)
	require.Equal(t, `["CLOSE","abcd:1"]`, string(b))
}

func TestProcessEvent(t *testing.T) {
	raw := `["EVENT","sub:1",{"id":"aa","pubkey":"bb","created_at":100,` +
		`"kind":1301,"tags":[["t","running"]],"content":"x","sig":"cc"}]`
	env, err := Process([]byte(raw))
	require.NoError(t, err)
	ee, ok := env.(*Event)
	require.True(t, ok)
	require.Equal(t, "sub:1", ee.SubscriptionID.String())
	require.Equal(t, kind.WorkoutRecord, ee.Event.Kind)
	require.Equal(t, "running", ee.Event.Tags.GetFirst([]string{"t"}).Value())
}

func TestProcessEose(t *testing.T) {
	env, err := Process([]byte(`["EOSE","sub:1"]`))
	require.NoError(t, err)
	eo, ok := env.(*Eose)
	require.True(t, ok)
	require.Equal(t, "sub:1", eo.SubscriptionID.String())
}

func TestProcessClosedAndNotice(t *testing.T) {
	env, err := Process([]byte(`["CLOSED","sub:1","rate-limited"]`))
	require.NoError(t, err)
	require.Equal(t, "rate-limited", env.(*Closed).Reason)

	env, err = Process([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	require.Equal(t, "slow down", env.(*Notice).Text)
}

func TestProcessUnknownAndMalformed(t *testing.T) {
	env, err := Process([]byte(`["AUTH","challenge"]`))
	require.NoError(t, err)
	require.Nil(t, env)

	_, err = Process([]byte(`{"not":"an array"}`))
	require.Error(t, err)

	_, err = Process([]byte(`[]`))
	require.Error(t, err)

	_, err = Process([]byte(`["EVENT","sub only"]`))
	require.Error(t, err)
}

func TestRoundTripFilterInsideReq(t *testing.T) {
	f := &filter.T{Kinds: kinds.T{kind.WorkoutRecord}, Limit: 10}
	b, err := json.Marshal(&Req{SubscriptionID: "x:1", Filters: filters.T{f}})
	require.NoError(t, err)
	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &arr))
	require.Len(t, arr, 3)
	var f2 filter.T
	require.NoError(t, json.Unmarshal(arr[2], &f2))
	require.True(t, filter.Equal(f, &f2))
}
