package filters

import (
	"encoding/json"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
)

// T is an ordered list of filters, as sent in a single REQ envelope. An event
// matches if any member matches.
type T []*filter.T

func (f T) Match(ev *event.T) bool {
	for _, v := range f {
		if v.Matches(ev) {
			return true
		}
	}
	return false
}

func (f T) String() string {
	b, _ := json.Marshal(f)
	return string(b)
}
