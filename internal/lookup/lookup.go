// Package lookup serves the on-demand slash commands that read from
// third-party APIs: Lichess ratings and a telemetry JSON endpoint.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/theory/jsonpath"

	"raidwatch/internal/config"
	"raidwatch/internal/fetcher"
)

const (
	DefaultLichessURL = "https://lichess.org"
	maxBody           = 1 << 20
)

type Client struct {
	http       *http.Client
	userAgent  string
	lichessURL string
}

func New(hc *http.Client, userAgent, lichessURL string) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = fetcher.DefaultUserAgent
	}
	if strings.TrimSpace(lichessURL) == "" {
		lichessURL = DefaultLichessURL
	}
	return &Client{http: hc, userAgent: userAgent, lichessURL: strings.TrimRight(lichessURL, "/")}
}

func (c *Client) get(ctx context.Context, rawURL, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: status %d", req.URL.Host+req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out)
}

// Perf is one Lichess rating category.
type Perf struct {
	Rating int  `json:"rating"`
	Games  int  `json:"games"`
	Prov   bool `json:"prov,omitempty"`
}

type Rating struct {
	Player string
	Blitz  *Perf
	Rapid  *Perf
	Puzzle *Perf
}

var ErrNotFound = errors.New("not found")

// Rating fetches the public profile of player.
func (c *Client) Rating(ctx context.Context, player string) (Rating, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return Rating{}, errors.New("player is empty")
	}
	var body struct {
		Username string           `json:"username"`
		Perfs    map[string]*Perf `json:"perfs"`
	}
	if err := c.get(ctx, c.lichessURL+"/api/user/"+url.PathEscape(player), "", &body); err != nil {
		return Rating{}, fmt.Errorf("lichess user %s: %w", player, err)
	}
	name := body.Username
	if name == "" {
		name = player
	}
	return Rating{Player: name, Blitz: body.Perfs["blitz"], Rapid: body.Perfs["rapid"], Puzzle: body.Perfs["puzzle"]}, nil
}

type Reading struct {
	Name  string
	Value string
	Unit  string
}

type Telemetry struct {
	Title    string
	Readings []Reading
	At       time.Time // zero when the endpoint carries no timestamp
}

// CompileTelemetry checks every JSONPath of cfg.
func CompileTelemetry(cfg *config.TelemetryConfig) error {
	if cfg == nil {
		return nil
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("telemetry url is empty")
	}
	for _, f := range cfg.Fields {
		if _, err := jsonpath.Parse(f.Path); err != nil {
			return fmt.Errorf("telemetry field %s: %w", f.Name, err)
		}
	}
	if cfg.Timestamp != "" {
		if _, err := jsonpath.Parse(cfg.Timestamp); err != nil {
			return fmt.Errorf("telemetry timestamp: %w", err)
		}
	}
	return nil
}

// Telemetry reads the endpoint of cfg and selects each configured field.
// Fields the document does not carry read as "N/A".
func (c *Client) Telemetry(ctx context.Context, cfg config.TelemetryConfig, token string) (Telemetry, error) {
	if err := CompileTelemetry(&cfg); err != nil {
		return Telemetry{}, err
	}
	var doc any
	if err := c.get(ctx, cfg.URL, token, &doc); err != nil {
		return Telemetry{}, fmt.Errorf("telemetry: %w", err)
	}
	out := Telemetry{Title: cfg.Title}
	for _, f := range cfg.Fields {
		v := fetcher.SelectString(jsonpath.MustParse(f.Path), doc)
		if v == "" {
			v = "N/A"
		}
		out.Readings = append(out.Readings, Reading{Name: f.Name, Value: v, Unit: f.Unit})
	}
	if cfg.Timestamp != "" {
		if ts := fetcher.SelectTimestamp(jsonpath.MustParse(cfg.Timestamp), doc); ts > 0 {
			out.At = time.Unix(ts, 0)
		}
	}
	return out, nil
}
