package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"raidwatch/internal/source"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return string(b)
}

func newTestRegistry(rt roundTripFunc, creds map[string]string) *Registry {
	return NewRegistry(Options{
		Client:           &http.Client{Transport: rt},
		Timeout:          2 * time.Second,
		RaiderIOInterval: time.Millisecond,
		Credentials: func(name string) (string, error) {
			if name == "" {
				return "", nil
			}
			v, ok := creds[name]
			if !ok {
				return "", errors.New("missing " + name)
			}
			return v, nil
		},
	})
}

func mustSource(t *testing.T, s source.Source) source.Source {
	t.Helper()
	if s.Policy == "" {
		s.Policy = source.PolicyItemSet
	}
	return s
}

func TestWarcraftLogsFetch(t *testing.T) {
	t.Parallel()

	var gotKey string
	rt := func(req *http.Request) (*http.Response, error) {
		gotKey = req.URL.Query().Get("api_key")
		return response(200, `[
			{"id":"old","title":"Old","owner":"a","start":1700000000000,"end":1700003600000},
			{"id":"new","title":"New","owner":"b","start":1700100000000,"end":1700103600000}
		]`), nil
	}
	reg := newTestRegistry(rt, map[string]string{"wcl": "k1"})
	src := mustSource(t, source.Source{ID: "wcl", Kind: source.KindWarcraftLogs, URL: "https://wcl.test/reports", Credential: "wcl", MaxItems: 1})

	snap, err := reg.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotKey != "k1" {
		t.Fatalf("api_key = %q, want k1", gotKey)
	}
	items := snap.Items()
	if len(items) != 1 || items[0].ID != "new" {
		t.Fatalf("items = %+v, want only newest", items)
	}
	if items[0].Timestamp != 1700100000 || items[0].Attrs["end"] != "1700103600" {
		t.Fatalf("timestamps not converted from ms: %+v", items[0])
	}
	if items[0].Link != "https://www.warcraftlogs.com/reports/new" {
		t.Fatalf("link = %q", items[0].Link)
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		rt     roundTripFunc
		op     string
		status int
	}{
		{"status", func(*http.Request) (*http.Response, error) { return response(503, "down"), nil }, "status", 503},
		{"decode", func(*http.Request) (*http.Response, error) { return response(200, "<html>"), nil }, "decode", 0},
		{"transport", func(*http.Request) (*http.Response, error) { return nil, errors.New("dial tcp: refused") }, "request", 0},
		{"shape", func(*http.Request) (*http.Response, error) { return response(200, `[{"title":"no id"}]`), nil }, "validate", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg := newTestRegistry(tc.rt, nil)
			src := mustSource(t, source.Source{ID: "wcl", Kind: source.KindWarcraftLogs, URL: "https://wcl.test/r"})
			_, err := reg.Fetch(context.Background(), src)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FetchError", err)
			}
			if fe.Op != tc.op || fe.Status != tc.status || fe.Source != "wcl" {
				t.Fatalf("FetchError = %+v, want op %s status %d", fe, tc.op, tc.status)
			}
		})
	}
}

func TestTransportErrorHidesCredential(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	}, map[string]string{"wcl": "SECRETKEY"})
	src := mustSource(t, source.Source{ID: "wcl", Kind: source.KindWarcraftLogs, URL: "https://wcl.test/reports", Credential: "wcl"})

	_, err := reg.Fetch(context.Background(), src)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Op != "request" {
		t.Fatalf("err = %v, want request FetchError", err)
	}
	if strings.Contains(err.Error(), "SECRETKEY") {
		t.Fatalf("err = %q, leaks credential", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %q, want transport cause", err)
	}
}

func TestFetchCredentialMissing(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(func(*http.Request) (*http.Response, error) {
		t.Errorf("request issued without credential")
		return response(200, "[]"), nil
	}, nil)
	src := mustSource(t, source.Source{ID: "wcl", Kind: source.KindWarcraftLogs, URL: "https://wcl.test/r", Credential: "nope"})
	_, err := reg.Fetch(context.Background(), src)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Op != "credential" {
		t.Fatalf("err = %v, want credential FetchError", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	rt := func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	reg := NewRegistry(Options{Client: &http.Client{Transport: roundTripFunc(rt)}, Timeout: 20 * time.Millisecond})
	src := mustSource(t, source.Source{ID: "wcl", Kind: source.KindWarcraftLogs, URL: "https://wcl.test/r"})
	_, err := reg.Fetch(context.Background(), src)
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.Timeout() {
		t.Fatalf("err = %v, want timeout FetchError", err)
	}
}

func rioBody(summary string, m, h, n int) string {
	return `{"name":"g","raid_progression":{"liberation-of-undermine":{"summary":"` + summary + `"}},` +
		`"raid_rankings":{"liberation-of-undermine":{"mythic":{"world":` + itoa(m) + `},"heroic":{"world":` + itoa(h) + `},"normal":{"world":` + itoa(n) + `}}}}`
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func raiderIOSource() source.Source {
	return source.Source{
		ID: "ranks", Kind: source.KindRaiderIO, Policy: source.PolicyRankedRecord, Raid: source.DefaultRaid,
		Guilds: []source.Guild{
			{Region: "eu", Realm: "draenor", Name: "Alpha"},
			{Region: "eu", Realm: "draenor", Name: "Broken"},
			{Region: "us", Realm: "illidan", Name: "Gamma"},
		},
	}
}

func TestRaiderIOFetch(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var keys []string
	rt := func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		mu.Lock()
		keys = append(keys, q.Get("access_key"))
		mu.Unlock()
		switch q.Get("name") {
		case "Alpha":
			return response(200, rioBody("8/8 M", 12, 40, 300)), nil
		case "Gamma":
			return response(200, rioBody("6/8 H", 0, 900, 2000)), nil
		default:
			return response(404, `{"error":"not found"}`), nil
		}
	}
	reg := newTestRegistry(rt, map[string]string{"rio": "secret"})
	src := raiderIOSource()
	src.Credential = "rio"

	snap, err := reg.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got := snap.Ranking()
	if len(got) != 3 {
		t.Fatalf("entities = %d, want 3", len(got))
	}
	if got[0].Key != "eu:draenor:alpha" || got[0].Record != (source.RankRecord{Mythic: 12, Heroic: 40, Normal: 300, Summary: "8/8 M"}) {
		t.Fatalf("alpha = %+v", got[0])
	}
	if got[1].Err == nil {
		t.Fatalf("broken guild Err = nil, want error")
	}
	if got[2].Record.Summary != "6/8 H" || got[2].ProfileURL != "https://raider.io/guilds/us/illidan/Gamma" {
		t.Fatalf("gamma = %+v", got[2])
	}
	for _, k := range keys {
		if k != "secret" {
			t.Fatalf("access_key = %q, want secret", k)
		}
	}
}

func TestRaiderIOAllFail(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(func(*http.Request) (*http.Response, error) { return response(500, "x"), nil }, nil)
	_, err := reg.Fetch(context.Background(), raiderIOSource())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 500 {
		t.Fatalf("err = %v, want status FetchError", err)
	}
}

func TestRedditFetchFullnames(t *testing.T) {
	t.Parallel()

	rt := func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/user/someone/submitted.json"):
			return response(200, `{"data":{"children":[{"kind":"t3","data":{"id":"abc","name":"t3_abc","title":"Post","url":"https://i.test/x","permalink":"/r/wow/comments/abc/post/","created_utc":1700000000,"subreddit":"wow","author":"someone"}}]}}`), nil
		case strings.HasSuffix(req.URL.Path, "/user/someone/comments.json"):
			return response(200, `{"data":{"children":[{"kind":"t1","data":{"id":"abc","body":"hi","link_title":"Thread","permalink":"/r/wow/comments/xyz/thread/abc/","created_utc":1700000500,"subreddit":"wow"}}]}}`), nil
		}
		return response(404, "{}"), nil
	}
	reg := newTestRegistry(rt, nil)
	src := mustSource(t, source.Source{ID: "rd", Kind: source.KindReddit, Username: "someone", Streams: []string{"submitted", "comments"}})

	snap, err := reg.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	items := snap.Items()
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].ID != "t3_abc" || items[0].Kind != "submission" || items[0].Link != "https://i.test/x" {
		t.Fatalf("submission = %+v", items[0])
	}
	if items[1].ID != "t1_abc" || items[1].Kind != "comment" || items[1].Link != "https://www.reddit.com/r/wow/comments/xyz/thread/abc/" {
		t.Fatalf("comment = %+v", items[1])
	}
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Patch notes</title>
<item><title>One</title><link>https://n.test/1</link><guid>g1</guid><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title>Two</title><link>https://n.test/2</link><pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate></item>
</channel></rss>`

func TestRedditFetchWithToken(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var hosts, auths []string
	rt := func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		hosts = append(hosts, req.URL.Host)
		auths = append(auths, req.Header.Get("Authorization"))
		mu.Unlock()
		return response(200, `{"data":{"children":[]}}`), nil
	}
	reg := newTestRegistry(rt, map[string]string{"reddit": "tok"})
	src := mustSource(t, source.Source{ID: "rd", Kind: source.KindReddit, Username: "someone", Streams: []string{"submitted"}, Credential: "reddit"})

	if _, err := reg.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hosts) != 1 || hosts[0] != "oauth.reddit.com" {
		t.Fatalf("hosts = %v, want [oauth.reddit.com]", hosts)
	}
	if auths[0] != "Bearer tok" {
		t.Fatalf("Authorization = %q, want %q", auths[0], "Bearer tok")
	}
}

func TestRSSFetchAuthorization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		cred  string
		creds map[string]string
		want  string
		op    string
	}{
		{"none", "", nil, "", ""},
		{"header", "feed", map[string]string{"feed": "Basic dXNlcjpwYXNz"}, "Basic dXNlcjpwYXNz", ""},
		{"missing", "absent", nil, "", "credential"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got string
			rt := func(req *http.Request) (*http.Response, error) {
				got = req.Header.Get("Authorization")
				resp := response(200, sampleRSS)
				resp.Header.Set("Content-Type", "application/rss+xml")
				return resp, nil
			}
			reg := newTestRegistry(rt, tc.creds)
			src := mustSource(t, source.Source{ID: "feed", Kind: source.KindRSS, URL: "https://n.test/feed.xml", Credential: tc.cred})

			_, err := reg.Fetch(context.Background(), src)
			if tc.op != "" {
				var fe *FetchError
				if !errors.As(err, &fe) || fe.Op != tc.op {
					t.Fatalf("err = %v, want %s FetchError", err, tc.op)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Authorization = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRSSFetch(t *testing.T) {
	t.Parallel()

	var ua string
	rt := func(req *http.Request) (*http.Response, error) {
		ua = req.Header.Get("User-Agent")
		resp := response(200, sampleRSS)
		resp.Header.Set("Content-Type", "application/rss+xml")
		return resp, nil
	}
	reg := newTestRegistry(rt, nil)
	src := mustSource(t, source.Source{ID: "feed", Kind: source.KindRSS, URL: "https://n.test/feed.xml"})

	snap, err := reg.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	items := snap.Items()
	if len(items) != 2 || items[0].ID != "g1" || items[1].ID != "https://n.test/2" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Timestamp != time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Unix() {
		t.Fatalf("timestamp = %d", items[0].Timestamp)
	}
	if ua != DefaultUserAgent {
		t.Fatalf("User-Agent = %q", ua)
	}
}

func TestJSONFetchMapping(t *testing.T) {
	t.Parallel()

	var auth string
	rt := func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		return response(200, `{"data":{"events":[
			{"uid":7,"name":"Seven","url":"https://e.test/7","at":"2024-01-02T03:04:05Z"},
			{"uid":"8","name":"Eight","at":1704164645000}
		]}}`), nil
	}
	reg := newTestRegistry(rt, map[string]string{"api": "tok"})
	src := mustSource(t, source.Source{
		ID: "ev", Kind: source.KindJSON, URL: "https://e.test/api", Credential: "api",
		Mapping: &source.Mapping{Items: "$.data.events[*]", ID: "$.uid", Title: "$.name", Link: "$.url", Timestamp: "$.at"},
	})

	snap, err := reg.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	items := snap.Items()
	if len(items) != 2 || items[0].ID != "7" || items[1].ID != "8" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Timestamp != 1704164645 || items[1].Timestamp != 1704164645 {
		t.Fatalf("timestamps = %d, %d", items[0].Timestamp, items[1].Timestamp)
	}
	if auth != "Bearer tok" {
		t.Fatalf("Authorization = %q", auth)
	}
}

func TestNewestKeepsInputOrder(t *testing.T) {
	t.Parallel()

	items := []source.Item{{ID: "a", Timestamp: 3}, {ID: "b", Timestamp: 1}, {ID: "c", Timestamp: 5}, {ID: "d", Timestamp: 4}}
	got := newest(items, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "d" {
		t.Fatalf("newest = %+v, want [c d]", got)
	}
}
