// Current Time Tool (timeapi.io).
//
// Information Hiding:
// - City to IANA zone resolution hidden
// - Time API request and response format hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/richinex/toolthread/model"
)

// DefaultTimeAPIURL is the timeapi.io current-time endpoint.
const DefaultTimeAPIURL = "https://timeapi.io/api/time/current/zone"

var cityZones = map[string]string{
	"atlanta":       "America/New_York",
	"new york":      "America/New_York",
	"boston":        "America/New_York",
	"miami":         "America/New_York",
	"chicago":       "America/Chicago",
	"houston":       "America/Chicago",
	"dallas":        "America/Chicago",
	"denver":        "America/Denver",
	"phoenix":       "America/Phoenix",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"toronto":       "America/Toronto",
	"mexico city":   "America/Mexico_City",
	"sao paulo":     "America/Sao_Paulo",
	"london":        "Europe/London",
	"paris":         "Europe/Paris",
	"berlin":        "Europe/Berlin",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"amsterdam":     "Europe/Amsterdam",
	"moscow":        "Europe/Moscow",
	"cairo":         "Africa/Cairo",
	"lagos":         "Africa/Lagos",
	"nairobi":       "Africa/Nairobi",
	"dubai":         "Asia/Dubai",
	"mumbai":        "Asia/Kolkata",
	"delhi":         "Asia/Kolkata",
	"singapore":     "Asia/Singapore",
	"hong kong":     "Asia/Hong_Kong",
	"shanghai":      "Asia/Shanghai",
	"beijing":       "Asia/Shanghai",
	"tokyo":         "Asia/Tokyo",
	"seoul":         "Asia/Seoul",
	"sydney":        "Australia/Sydney",
	"auckland":      "Pacific/Auckland",
	"utc":           "UTC",
}

// ResolveTimeZone maps a city name or IANA zone to an IANA zone.
// Names containing a slash are taken as zones already.
func ResolveTimeZone(city string) string {
	city = strings.TrimSpace(city)
	if strings.Contains(city, "/") {
		return city
	}
	if zone, ok := cityZones[strings.ToLower(city)]; ok {
		return zone
	}
	return city
}

// TimeReport is the result of get_current_time.
type TimeReport struct {
	TimeZone  string `json:"timeZone"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	DayOfWeek string `json:"dayOfWeek"`
	DateTime  string `json:"dateTime,omitempty"`
	DSTActive bool   `json:"dstActive"`
}

// TimeTool reports the current time in a city or zone.
type TimeTool struct {
	http    *jsonClient
	baseURL string
}

// NewTimeTool creates a time tool with the given HTTP timeout.
func NewTimeTool(timeoutSecs uint64) *TimeTool {
	return &TimeTool{
		http:    newJSONClient(timeoutSecs),
		baseURL: DefaultTimeAPIURL,
	}
}

// WithBaseURL overrides the time API endpoint.
func (t *TimeTool) WithBaseURL(baseURL string) *TimeTool {
	t.baseURL = baseURL
	return t
}

// Metadata returns the tool metadata.
func (t *TimeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_current_time",
		Description: "Get the current date, time and day of week in a city or IANA timezone",
		Parameters: []ToolParameter{
			{Name: "city", ParamType: "string", Description: "City name or IANA timezone, e.g. Paris or America/New_York", Required: true},
		},
	}
}

type timeArgs struct {
	City string `json:"city"`
}

// Validate rejects blank city names.
func (t *TimeTool) Validate(args json.RawMessage) error {
	var a timeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("city cannot be empty")
	}
	return nil
}

// Execute fetches the current time for the resolved zone.
func (t *TimeTool) Execute(ctx context.Context, args json.RawMessage, _ model.Values) (ToolResult, error) {
	var a timeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return InvalidArgumentsf("invalid arguments: %v", err), nil
	}

	zone := ResolveTimeZone(a.City)

	var report TimeReport
	if err := t.http.get(ctx, t.baseURL, url.Values{"timeZone": {zone}}, &report); err != nil {
		return FailureResultf("time lookup for '%s' failed: %v", zone, err), nil
	}
	if report.TimeZone == "" {
		report.TimeZone = zone
	}
	return SuccessResult(report), nil
}
