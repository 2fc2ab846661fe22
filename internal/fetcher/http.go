package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type httpClient struct {
	http      *http.Client
	userAgent string
}

// getJSON issues a GET and decodes a 2xx JSON body into out. header may be
// nil. Failures come back as *FetchError without Source/Kind set.
func (c *httpClient) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{Op: "request", Err: scrubURL(err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: "request", Err: scrubURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{Op: "status", Status: resp.StatusCode, Err: fmt.Errorf("GET %s", redact(req))}
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &FetchError{Op: "request", Err: err}
		}
		return &FetchError{Op: "decode", Err: err}
	}
	return nil
}

// redact renders the request URL without its query, which may carry keys.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

// scrubURL drops the query from the URL carried by a *url.Error. Provider
// keys travel in the query and must not reach logs or chat.
func scrubURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL, _, _ = strings.Cut(ue.URL, "?")
	}
	return err
}
