package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"raidwatch/internal/source"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "raidwatch/1.0 (+https://github.com/raidwatch/raidwatch)"
	maxBodyBytes     = 8 << 20
)

type Fetcher interface {
	Fetch(ctx context.Context, src source.Source) (source.Snapshot, error)
}

// CredentialFunc resolves a source's credential reference to its value.
type CredentialFunc func(name string) (string, error)

// FetchError is the only error type returned by Registry.Fetch.
type FetchError struct {
	Source string
	Kind   source.Kind
	Op     string // request | status | decode | validate | credential
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (%s): %s: status %d: %v", e.Source, e.Kind, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): %s: %v", e.Source, e.Kind, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch hit its deadline.
func (e *FetchError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

type Options struct {
	Client      *http.Client
	UserAgent   string
	Timeout     time.Duration
	Credentials CredentialFunc
	// RaiderIOInterval paces guild requests (default 300ms).
	RaiderIOInterval time.Duration
	// RaiderIOConcurrency bounds in-flight guild requests (default 2).
	RaiderIOConcurrency int
}

// Registry dispatches Fetch by source kind.
type Registry struct {
	timeout  time.Duration
	fetchers map[source.Kind]Fetcher
}

// NewRegistry returns a Registry with every built-in provider.
func NewRegistry(opt Options) *Registry {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.UserAgent == "" {
		opt.UserAgent = DefaultUserAgent
	}
	if opt.Client == nil {
		opt.Client = &http.Client{Timeout: opt.Timeout}
	}
	if opt.Credentials == nil {
		opt.Credentials = func(string) (string, error) { return "", nil }
	}
	hc := &httpClient{http: opt.Client, userAgent: opt.UserAgent}

	r := &Registry{timeout: opt.Timeout, fetchers: map[source.Kind]Fetcher{}}
	r.Register(source.KindWarcraftLogs, &WarcraftLogs{client: hc, creds: opt.Credentials})
	r.Register(source.KindRaiderIO, NewRaiderIO(hc, opt.Credentials, opt.RaiderIOInterval, opt.RaiderIOConcurrency))
	r.Register(source.KindReddit, &Reddit{client: hc, creds: opt.Credentials, baseURL: redditBaseURL, oauthURL: redditOAuthURL})
	r.Register(source.KindRSS, &RSS{client: opt.Client, userAgent: opt.UserAgent, creds: opt.Credentials})
	r.Register(source.KindJSON, &JSON{client: hc, creds: opt.Credentials})
	return r
}

func (r *Registry) Register(kind source.Kind, f Fetcher) { r.fetchers[kind] = f }

// Fetch runs the kind's fetcher under the per-fetch timeout, checks that
// the snapshot matches the source policy and keeps the newest MaxItems.
func (r *Registry) Fetch(ctx context.Context, src source.Source) (source.Snapshot, error) {
	f, ok := r.fetchers[src.Kind]
	if !ok {
		return source.Snapshot{}, &FetchError{Source: src.ID, Kind: src.Kind, Op: "request", Err: fmt.Errorf("no fetcher for kind %q", src.Kind)}
	}

	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err := f.Fetch(fctx, src)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{Op: "request", Err: err}
		}
		fe.Source, fe.Kind = src.ID, src.Kind
		return source.Snapshot{}, fe
	}
	if snap.Policy() != src.Policy {
		return source.Snapshot{}, &FetchError{Source: src.ID, Kind: src.Kind, Op: "validate",
			Err: fmt.Errorf("snapshot policy %q does not match source policy %q", snap.Policy(), src.Policy)}
	}
	if snap.Policy() == source.PolicyItemSet && src.MaxItems > 0 {
		snap = source.ItemSetSnapshot(newest(snap.Items(), src.MaxItems))
	}
	return snap, nil
}

// newest returns the n items with the latest timestamps, in input order.
func newest(items []source.Item, n int) []source.Item {
	if len(items) <= n {
		return items
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return items[idx[a]].Timestamp > items[idx[b]].Timestamp })
	keep := idx[:n]
	sort.Ints(keep)
	out := make([]source.Item, 0, n)
	for _, i := range keep {
		out = append(out, items[i])
	}
	return out
}

func credentialError(err error) error {
	return &FetchError{Op: "credential", Err: err}
}
