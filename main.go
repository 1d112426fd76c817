// seekr queries a set of nostr relays for events matching a logical request,
// runs the layered aggregation plan against all of them in parallel, and
// prints the merged, deduplicated result as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/interrupt"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/discover"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/strategy"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
	"github.com/alexflint/go-arg"
)

var log, chk = slog.New(os.Stderr)

type Config struct {
	Relays       []string      `arg:"-r,--relay,separate" help:"relay to query, repeatable; bare hostnames become wss://"`
	Kinds        []int         `arg:"-k,--kind,separate" help:"event kind to discover, repeatable (default: fitness teams)"`
	Authors      []string      `arg:"-a,--author,separate" help:"author pubkey in hex, repeatable"`
	Tags         []string      `arg:"-t,--tag,separate" help:"tag filter as key=value, repeatable"`
	Count        int           `arg:"-c,--count" help:"stop after this many unique events (0 = exhaustive)"`
	BucketTime   time.Duration `arg:"--bucket-timeout" default:"6s" help:"deadline of each time-bucketed step"`
	FallbackTime time.Duration `arg:"--fallback-timeout" default:"8s" help:"deadline of each fallback step"`
	Unrestricted bool          `arg:"--unrestricted" help:"append a kinds-only last-resort step, results are re-validated locally"`
	CacheTTL     time.Duration `arg:"--cache-ttl" default:"5m" help:"result cache ttl, 0 disables the cache"`
	Stream       bool          `arg:"--stream" help:"skip planning, subscribe live and print events until interrupted"`
	LogLevel     string        `arg:"-l,--loglevel" default:"info" help:"off|fatal|error|warn|info|debug|trace"`
}

func (Config) Description() string {
	return `seekr finds events across many nostr relays at once: fitness teams,
workout records, templates and join requests, deduplicated by event ID and
post-validated against the requested authors and tags.`
}

func main() {
	var cfg Config
	arg.MustParse(&cfg)
	slog.SetLogLevelString(cfg.LogLevel)
	if len(cfg.Relays) == 0 {
		log.F.Ln("at least one relay is required, see -r")
		os.Exit(1)
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []int{int(kind.FitnessTeam)}
	}
	tagFilters, err := parseTags(cfg.Tags)
	if chk.F(err) {
		os.Exit(1)
	}

	pol := strategy.DefaultPolicy()
	pol.BucketTimeout = cfg.BucketTime
	pol.FallbackTimeout = cfg.FallbackTime
	pol.Unrestricted = cfg.Unrestricted

	c, cancel := context.Cancel(context.Bg())
	opts := []discover.Option{discover.WithPolicy(pol)}
	if cfg.CacheTTL > 0 {
		opts = append(opts, discover.WithCache(cfg.CacheTTL))
	}
	sys := discover.New(c, opts...)
	interrupt.AddHandler(func() {
		cancel()
		sys.Close()
	})

	rq := discover.Request{
		Kinds:       cfg.Kinds,
		Authors:     cfg.Authors,
		TagFilters:  tagFilters,
		TargetCount: cfg.Count,
		Endpoints:   cfg.Relays,
	}
	if cfg.Stream {
		stream(c, sys, rq)
		return
	}

	r, err := sys.Discover(c, rq)
	if chk.F(err) {
		os.Exit(1)
	}
	var b []byte
	if b, err = json.MarshalIndent(r, "", "  "); chk.F(err) {
		os.Exit(1)
	}
	fmt.Println(string(b))
}

// stream prints one line per unique live event, prefixed with the relay
// that delivered it first, until interrupted.
func stream(c context.T, sys *discover.System, rq discover.Request) {
	for ie := range sys.Stream(c, rq) {
		b, err := json.Marshal(ie.Event)
		if chk.E(err) {
			continue
		}
		fmt.Printf("%s %s\n", ie.Relay.URL(), b)
	}
	if interrupt.Requested() {
		<-interrupt.HandlersDone.Wait()
	}
}

func parseTags(in []string) (out map[string][]string, err error) {
	if len(in) == 0 {
		return
	}
	out = make(map[string][]string)
	for _, s := range in {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, log.E.Err("invalid tag filter %q, want key=value", s)
		}
		out[k] = append(out[k], v)
	}
	return
}
