package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"raidwatch/internal/source"
)

const (
	redditBaseURL  = "https://www.reddit.com"
	redditOAuthURL = "https://oauth.reddit.com"
)

// Reddit lists a user's submissions and comments. Item ids are reddit
// fullnames (t3_ for posts, t1_ for comments), so both streams share one
// seen set without collisions. With a credential the listing is read from
// the OAuth host using the credential as a bearer token.
type Reddit struct {
	client   *httpClient
	creds    CredentialFunc
	baseURL  string
	oauthURL string
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string          `json:"kind"`
	Data redditThingData `json:"data"`
}

type redditThingData struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	LinkTitle  string  `json:"link_title"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

func (r *Reddit) Fetch(ctx context.Context, src source.Source) (source.Snapshot, error) {
	base, header := r.baseURL, http.Header(nil)
	if src.Credential != "" {
		token, err := r.creds(src.Credential)
		if err != nil {
			return source.Snapshot{}, credentialError(err)
		}
		base = r.oauthURL
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	var items []source.Item
	for _, stream := range src.Streams {
		got, err := r.fetchStream(ctx, base, header, src.Username, stream)
		if err != nil {
			return source.Snapshot{}, err
		}
		items = append(items, got...)
	}
	return source.ItemSetSnapshot(items), nil
}

func (r *Reddit) fetchStream(ctx context.Context, base string, header http.Header, user, stream string) ([]source.Item, error) {
	u := fmt.Sprintf("%s/user/%s/%s.json?limit=25&raw_json=1", base, url.PathEscape(user), stream)
	var listing redditListing
	if err := r.client.getJSON(ctx, u, header, &listing); err != nil {
		return nil, err
	}

	items := make([]source.Item, 0, len(listing.Data.Children))
	for i, c := range listing.Data.Children {
		d := c.Data
		if d.ID == "" && d.Name == "" {
			return nil, &FetchError{Op: "validate", Err: fmt.Errorf("%s[%d] has no id", stream, i)}
		}
		kind := c.Kind
		if kind == "" {
			kind = map[string]string{"submitted": "t3", "comments": "t1"}[stream]
		}
		id := d.Name
		if id == "" {
			id = kind + "_" + d.ID
		}
		it := source.Item{
			ID:        id,
			Timestamp: int64(d.CreatedUTC),
			Author:    d.Author,
			Attrs: map[string]string{
				"subreddit": d.Subreddit,
				"permalink": r.permalink(d.Permalink),
			},
		}
		switch kind {
		case "t1":
			it.Kind = "comment"
			it.Title = d.LinkTitle
			it.Body = d.Body
			it.Link = r.permalink(d.Permalink)
		default:
			it.Kind = "submission"
			it.Title = d.Title
			it.Body = d.Selftext
			it.Link = d.URL
			if it.Link == "" {
				it.Link = r.permalink(d.Permalink)
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func (r *Reddit) permalink(p string) string {
	if p == "" || strings.HasPrefix(p, "http") {
		return p
	}
	return redditBaseURL + p
}
