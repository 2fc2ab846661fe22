package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"raidwatch/internal/source"
)

const warcraftLogsReportURL = "https://www.warcraftlogs.com/reports/"

// WarcraftLogs reads a guild's report list from the Warcraft Logs v1 API.
// The source URL is the report list endpoint; the credential is the API key.
type WarcraftLogs struct {
	client *httpClient
	creds  CredentialFunc
}

type wclReport struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
	Zone  int    `json:"zone"`
	Start int64  `json:"start"` // unix ms
	End   int64  `json:"end"`   // unix ms
}

func (w *WarcraftLogs) Fetch(ctx context.Context, src source.Source) (source.Snapshot, error) {
	key, err := w.creds(src.Credential)
	if err != nil {
		return source.Snapshot{}, credentialError(err)
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return source.Snapshot{}, &FetchError{Op: "request", Err: err}
	}
	if key != "" {
		q := u.Query()
		q.Set("api_key", key)
		u.RawQuery = q.Encode()
	}

	var reports []wclReport
	if err := w.client.getJSON(ctx, u.String(), nil, &reports); err != nil {
		return source.Snapshot{}, err
	}

	items := make([]source.Item, 0, len(reports))
	for i, r := range reports {
		if r.ID == "" {
			return source.Snapshot{}, &FetchError{Op: "validate", Err: fmt.Errorf("report %d has no id", i)}
		}
		items = append(items, source.Item{
			ID:        r.ID,
			Kind:      "report",
			Timestamp: r.Start / 1000,
			Title:     r.Title,
			Author:    r.Owner,
			Link:      warcraftLogsReportURL + url.PathEscape(r.ID),
			Attrs: map[string]string{
				"start": strconv.FormatInt(r.Start/1000, 10),
				"end":   strconv.FormatInt(r.End/1000, 10),
			},
		})
	}
	return source.ItemSetSnapshot(items), nil
}
