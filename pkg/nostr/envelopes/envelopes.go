// Package envelopes implements the client side of the NIP-01 message framing:
// JSON arrays whose first element is a label string. Only the envelopes a
// discovery client sends or receives are implemented, and unknown labels are
// skipped rather than treated as errors because relays extend the protocol
// freely.
package envelopes

import (
	"encoding/json"
	"fmt"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/subscriptionid"
)

// Envelope labels.
const (
	LabelReq    = "REQ"
	LabelEvent  = "EVENT"
	LabelEose   = "EOSE"
	LabelClose  = "CLOSE"
	LabelClosed = "CLOSED"
	LabelNotice = "NOTICE"
)

// Req is the client->relay subscribe request.
type Req struct {
	SubscriptionID subscriptionid.T
	Filters        filters.T
}

func (env *Req) MarshalJSON() (b []byte, err error) {
	elems := []interface{}{LabelReq, env.SubscriptionID.String()}
	for _, f := range env.Filters {
		elems = append(elems, f)
	}
	return json.Marshal(elems)
}

// Close is the client->relay unsubscribe request.
type Close struct {
	SubscriptionID subscriptionid.T
}

func (env *Close) MarshalJSON() (b []byte, err error) {
	return json.Marshal([]interface{}{LabelClose, env.SubscriptionID.String()})
}

// Event is a relay->client event frame tagged with the subscription it
// answers.
type Event struct {
	SubscriptionID subscriptionid.T
	Event          *event.T
}

// Eose is the end-of-stored-events marker. Observed to be unreliable: events
// can and do arrive after it, so consumers treat it as advisory.
type Eose struct {
	SubscriptionID subscriptionid.T
}

// Closed is the relay telling the client a subscription was terminated
// server-side.
type Closed struct {
	SubscriptionID subscriptionid.T
	Reason         string
}

// Notice is a human-readable message from the relay.
type Notice struct {
	Text string
}

// Process identifies and decodes one inbound frame. A nil envelope with nil
// error means the frame carried a label this client has no use for.
func Process(b []byte) (env interface{}, err error) {
	var arr []json.RawMessage
	if err = json.Unmarshal(b, &arr); err != nil {
		return nil, fmt.Errorf("envelope is not a JSON array: %w", err)
	}
	if len(arr) < 1 {
		return nil, fmt.Errorf("empty envelope")
	}
	var label string
	if err = json.Unmarshal(arr[0], &label); err != nil {
		return nil, fmt.Errorf("envelope label is not a string: %w", err)
	}
	switch label {
	case LabelEvent:
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT envelope with %d elements", len(arr))
		}
		e := &Event{}
		if err = json.Unmarshal(arr[1], (*string)(&e.SubscriptionID)); err != nil {
			return nil, err
		}
		e.Event = &event.T{}
		if err = json.Unmarshal(arr[2], e.Event); err != nil {
			return nil, err
		}
		return e, nil
	case LabelEose:
		if len(arr) < 2 {
			return nil, fmt.Errorf("EOSE envelope with %d elements", len(arr))
		}
		e := &Eose{}
		if err = json.Unmarshal(arr[1], (*string)(&e.SubscriptionID)); err != nil {
			return nil, err
		}
		return e, nil
	case LabelClosed:
		if len(arr) < 2 {
			return nil, fmt.Errorf("CLOSED envelope with %d elements", len(arr))
		}
		e := &Closed{}
		if err = json.Unmarshal(arr[1], (*string)(&e.SubscriptionID)); err != nil {
			return nil, err
		}
		if len(arr) > 2 {
			// reason is optional
			_ = json.Unmarshal(arr[2], &e.Reason)
		}
		return e, nil
	case LabelNotice:
		e := &Notice{}
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &e.Text)
		}
		return e, nil
	}
	return nil, nil
}
