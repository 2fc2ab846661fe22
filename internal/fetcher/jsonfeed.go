package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/theory/jsonpath"

	"raidwatch/internal/source"
)

// JSON maps an arbitrary JSON endpoint to items with JSONPath. The
// credential, if any, is sent as a bearer token.
type JSON struct {
	client *httpClient
	creds  CredentialFunc
}

type compiledMapping struct {
	items, id, title, link, author, body, timestamp *jsonpath.Path
}

func compileMapping(m *source.Mapping) (*compiledMapping, error) {
	if m == nil {
		return nil, fmt.Errorf("mapping is required")
	}
	var cm compiledMapping
	for _, f := range []struct {
		name string
		expr string
		dst  **jsonpath.Path
	}{
		{"items", m.Items, &cm.items},
		{"id", m.ID, &cm.id},
		{"title", m.Title, &cm.title},
		{"link", m.Link, &cm.link},
		{"author", m.Author, &cm.author},
		{"body", m.Body, &cm.body},
		{"timestamp", m.Timestamp, &cm.timestamp},
	} {
		if strings.TrimSpace(f.expr) == "" {
			continue
		}
		p, err := jsonpath.Parse(f.expr)
		if err != nil {
			return nil, fmt.Errorf("mapping.%s: %w", f.name, err)
		}
		*f.dst = p
	}
	return &cm, nil
}

// CompileMapping reports whether every path of m parses.
func CompileMapping(m *source.Mapping) error {
	_, err := compileMapping(m)
	return err
}

func (j *JSON) Fetch(ctx context.Context, src source.Source) (source.Snapshot, error) {
	cm, err := compileMapping(src.Mapping)
	if err != nil {
		return source.Snapshot{}, &FetchError{Op: "validate", Err: err}
	}
	token, err := j.creds(src.Credential)
	if err != nil {
		return source.Snapshot{}, credentialError(err)
	}
	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	var doc any
	if err := j.client.getJSON(ctx, src.URL, header, &doc); err != nil {
		return source.Snapshot{}, err
	}

	nodes := cm.items.Select(doc)
	items := make([]source.Item, 0, len(nodes))
	for i, n := range nodes {
		id := selectString(cm.id, n)
		if id == "" {
			return source.Snapshot{}, &FetchError{Op: "validate", Err: fmt.Errorf("item %d: id path %s matched nothing", i, src.Mapping.ID)}
		}
		items = append(items, source.Item{
			ID:        id,
			Kind:      "entry",
			Timestamp: selectTimestamp(cm.timestamp, n),
			Title:     selectString(cm.title, n),
			Link:      selectString(cm.link, n),
			Author:    selectString(cm.author, n),
			Body:      selectString(cm.body, n),
		})
	}
	return source.ItemSetSnapshot(items), nil
}

// SelectString returns the first node p selects in doc as a string.
func SelectString(p *jsonpath.Path, doc any) string { return selectString(p, doc) }

func selectString(p *jsonpath.Path, doc any) string {
	if p == nil {
		return ""
	}
	nodes := p.Select(doc)
	if len(nodes) == 0 || nodes[0] == nil {
		return ""
	}
	switch v := nodes[0].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// SelectTimestamp returns the first node p selects in doc as unix seconds.
func SelectTimestamp(p *jsonpath.Path, doc any) int64 { return selectTimestamp(p, doc) }

// selectTimestamp accepts unix seconds, unix milliseconds or RFC 3339.
func selectTimestamp(p *jsonpath.Path, doc any) int64 {
	if p == nil {
		return 0
	}
	nodes := p.Select(doc)
	if len(nodes) == 0 {
		return 0
	}
	switch v := nodes[0].(type) {
	case float64:
		ts := int64(v)
		if ts > 1e12 {
			ts /= 1000
		}
		return ts
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.Unix()
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n > 1e12 {
				n /= 1000
			}
			return n
		}
	}
	return 0
}
