package lookup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"raidwatch/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func reply(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func TestRating(t *testing.T) {
	t.Parallel()

	var path string
	c := New(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		return reply(200, `{"username":"Loctifas","perfs":{"blitz":{"rating":1834,"games":120},"puzzle":{"rating":2101,"games":900}}}`), nil
	})}, "", "https://lichess.test/")

	got, err := c.Rating(context.Background(), "loctifas")
	if err != nil {
		t.Fatalf("Rating: %v", err)
	}
	if path != "/api/user/loctifas" {
		t.Fatalf("path = %q, want /api/user/loctifas", path)
	}
	if got.Player != "Loctifas" || got.Blitz == nil || got.Blitz.Rating != 1834 || got.Rapid != nil || got.Puzzle.Games != 900 {
		t.Fatalf("Rating = %+v", got)
	}
}

func TestRatingNotFound(t *testing.T) {
	t.Parallel()

	c := New(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return reply(404, `{"error":"Not found"}`), nil
	})}, "", "")
	if _, err := c.Rating(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTelemetry(t *testing.T) {
	t.Parallel()

	var auth string
	c := New(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		auth = r.Header.Get("Authorization")
		return reply(200, `{"sensor":"BME280","data":{"temp":21.4,"hum":40},"time":1700000000000}`), nil
	})}, "", "")

	cfg := config.TelemetryConfig{
		URL:   "https://sensors.test/latest",
		Title: "Room",
		Fields: []config.TelemetryField{
			{Name: "Sensor", Path: "$.sensor"},
			{Name: "Temperature", Path: "$.data.temp", Unit: "°C"},
			{Name: "Pressure", Path: "$.data.pressure", Unit: "hPa"},
		},
		Timestamp: "$.time",
	}
	got, err := c.Telemetry(context.Background(), cfg, "tok")
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("Authorization = %q, want Bearer tok", auth)
	}
	want := []Reading{{Name: "Sensor", Value: "BME280"}, {Name: "Temperature", Value: "21.4", Unit: "°C"}, {Name: "Pressure", Value: "N/A", Unit: "hPa"}}
	if len(got.Readings) != len(want) {
		t.Fatalf("Readings = %+v", got.Readings)
	}
	for i := range want {
		if got.Readings[i] != want[i] {
			t.Fatalf("Readings[%d] = %+v, want %+v", i, got.Readings[i], want[i])
		}
	}
	if got.At.Unix() != 1700000000 {
		t.Fatalf("At = %v, want unix 1700000000", got.At)
	}
}

func TestCompileTelemetryRejectsBadPath(t *testing.T) {
	t.Parallel()

	err := CompileTelemetry(&config.TelemetryConfig{URL: "https://x", Fields: []config.TelemetryField{{Name: "a", Path: "$[?"}}})
	if err == nil {
		t.Fatalf("CompileTelemetry accepted an invalid path")
	}
	if CompileTelemetry(nil) != nil {
		t.Fatalf("CompileTelemetry(nil) should be nil")
	}
}
