package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/richinex/toolthread/model"
)

func TestWeatherToolExecute(t *testing.T) {
	var geoQuery, forecastQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/geo", func(w http.ResponseWriter, r *http.Request) {
		geoQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"results":[{"name":"Atlanta","latitude":33.749,"longitude":-84.388,"admin1":"Georgia","country":"United States"}]}`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		forecastQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":72.5,"apparent_temperature":74.1,"weather_code":2,"wind_speed_10m":5.4,"relative_humidity_2m":61}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tool := NewWeatherTool(5).WithEndpoints(srv.URL+"/geo", srv.URL+"/forecast")
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"city":"Atlanta"}`), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Error)
	}

	report, ok := res.Value.(WeatherReport)
	if !ok {
		t.Fatalf("expected WeatherReport, got %T", res.Value)
	}
	if report.City != "Atlanta" || report.Condition != "Partly cloudy" || report.Humidity != 61 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.TemperatureUnit != "fahrenheit" || report.WindSpeedUnit != "mph" {
		t.Errorf("unexpected units: %+v", report)
	}

	if !strings.Contains(geoQuery, "name=Atlanta") || !strings.Contains(geoQuery, "country=US") {
		t.Errorf("unexpected geocoding query: %s", geoQuery)
	}
	if !strings.Contains(forecastQuery, "latitude=33.749") || !strings.Contains(forecastQuery, "temperature_unit=fahrenheit") {
		t.Errorf("unexpected forecast query: %s", forecastQuery)
	}
}

func TestWeatherToolCityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tool := NewWeatherTool(5).WithEndpoints(srv.URL, srv.URL)
	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"city":"Atlantis"}`), nil)
	if res.Success() || !strings.Contains(res.Error.Detail, "not found") {
		t.Errorf("expected not-found failure, got %+v", res)
	}
}

func TestWeatherToolUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tool := NewWeatherTool(5).WithEndpoints(srv.URL, srv.URL)
	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"city":"Paris"}`), nil)
	if res.Success() || res.Error.Kind != KindExecution || !strings.Contains(res.Error.Detail, "429") {
		t.Errorf("expected HTTP 429 failure, got %+v", res)
	}
}

func TestWeatherToolValidate(t *testing.T) {
	tool := NewWeatherTool(1)
	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", `{"city":"Paris"}`, false},
		{"blank city", `{"city":"  "}`, true},
		{"invalid json", `{invalid}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.Validate(json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	if got := DescribeWeatherCode(95); got != "Thunderstorm" {
		t.Errorf("code 95 = %q", got)
	}
	if got := DescribeWeatherCode(1234); got != "Unknown" {
		t.Errorf("unknown code = %q", got)
	}
}

func TestTimeToolExecute(t *testing.T) {
	var zone string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zone = r.URL.Query().Get("timeZone")
		_, _ = w.Write([]byte(`{"timeZone":"Europe/Paris","date":"10/17/2026","time":"15:04","dayOfWeek":"Saturday","dateTime":"2026-10-17T15:04:05","dstActive":true}`))
	}))
	defer srv.Close()

	tool := NewTimeTool(5).WithBaseURL(srv.URL)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"city":"Paris"}`), nil)
	if err != nil || !res.Success() {
		t.Fatalf("expected success, got %v / %v", err, res.Error)
	}
	if zone != "Europe/Paris" {
		t.Errorf("queried zone %q, want Europe/Paris", zone)
	}
	report := res.Value.(TimeReport)
	if report.DayOfWeek != "Saturday" || report.Time != "15:04" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestResolveTimeZone(t *testing.T) {
	tests := map[string]string{
		"Atlanta":          "America/New_York",
		"  tokyo ":         "Asia/Tokyo",
		"America/Chicago":  "America/Chicago",
		"Nowhereville":     "Nowhereville",
		"San Francisco":    "America/Los_Angeles",
		"Europe/Amsterdam": "Europe/Amsterdam",
	}
	for in, want := range tests {
		if got := ResolveTimeZone(in); got != want {
			t.Errorf("ResolveTimeZone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCityLookupTool(t *testing.T) {
	tool := NewCityLookupTool(nil)

	tests := []struct {
		name    string
		values  model.Values
		want    string
		success bool
	}{
		{"known user 1", model.Values{"user_id": "1"}, "Atlanta", true},
		{"known user 2", model.Values{"user_id": "2"}, "Paris", true},
		{"unknown user", model.Values{"user_id": "7"}, "Unknown location for user_id: 7", true},
		{"no user", model.Values{}, "no user_id in session context", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Execute(context.Background(), json.RawMessage(`{}`), tt.values)
			if err != nil {
				t.Fatal(err)
			}
			if res.Success() != tt.success {
				t.Fatalf("Success() = %v, want %v", res.Success(), tt.success)
			}
			got := res.Content()
			if !tt.success {
				got = res.Error.Detail
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserLocationTool(t *testing.T) {
	res, _ := NewUserLocationTool("").Execute(context.Background(), nil, nil)
	if res.Content() != "New York" {
		t.Errorf("default location = %q", res.Content())
	}
	res, _ = NewUserLocationTool("Lagos").Execute(context.Background(), nil, nil)
	if res.Content() != "Lagos" {
		t.Errorf("configured location = %q", res.Content())
	}
}

func TestAskUserTool(t *testing.T) {
	var asked string
	tool := NewAskUserTool(PrompterFunc(func(_ context.Context, q string) (string, error) {
		asked = q
		return "  Paris\n", nil
	}))

	res, _ := tool.Execute(context.Background(), json.RawMessage(`{}`), nil)
	if res.Content() != "Paris" {
		t.Errorf("answer = %q, want Paris", res.Content())
	}
	if asked != defaultQuestion {
		t.Errorf("asked %q, want default question", asked)
	}

	failing := NewAskUserTool(PrompterFunc(func(ctx context.Context, _ string) (string, error) {
		return "", errors.New("stdin closed")
	}))
	res, _ = failing.Execute(context.Background(), json.RawMessage(`{"question":"Which city?"}`), nil)
	if res.Success() {
		t.Error("expected failure when prompter errors")
	}
}
