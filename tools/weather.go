// Weather Tool (Open-Meteo).
//
// Information Hiding:
// - Geocoding and forecast API calls hidden
// - Weather code table hidden
// - Unit selection hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/richinex/toolthread/model"
)

const (
	// DefaultGeocodingURL is the Open-Meteo geocoding endpoint.
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

	// DefaultForecastURL is the Open-Meteo forecast endpoint.
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Icy fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// DescribeWeatherCode maps a WMO weather code to a description.
func DescribeWeatherCode(code int) string {
	if d, ok := weatherCodes[code]; ok {
		return d
	}
	return "Unknown"
}

// WeatherReport is the result of get_weather_for_location.
type WeatherReport struct {
	City            string  `json:"city"`
	Region          string  `json:"region,omitempty"`
	Country         string  `json:"country,omitempty"`
	Condition       string  `json:"condition"`
	Temperature     float64 `json:"temperature"`
	FeelsLike       float64 `json:"feels_like"`
	Humidity        int     `json:"humidity"`
	WindSpeed       float64 `json:"wind_speed"`
	TemperatureUnit string  `json:"temperature_unit"`
	WindSpeedUnit   string  `json:"wind_speed_unit"`
}

// WeatherTool fetches current conditions for a city.
type WeatherTool struct {
	http           *jsonClient
	geocodingURL   string
	forecastURL    string
	defaultCountry string
}

// NewWeatherTool creates a weather tool with the given HTTP timeout.
func NewWeatherTool(timeoutSecs uint64) *WeatherTool {
	return &WeatherTool{
		http:           newJSONClient(timeoutSecs),
		geocodingURL:   DefaultGeocodingURL,
		forecastURL:    DefaultForecastURL,
		defaultCountry: "US",
	}
}

// WithEndpoints overrides the geocoding and forecast URLs.
func (t *WeatherTool) WithEndpoints(geocodingURL, forecastURL string) *WeatherTool {
	t.geocodingURL = geocodingURL
	t.forecastURL = forecastURL
	return t
}

// WithCountry sets the country code used when the call names none.
// An empty code searches worldwide.
func (t *WeatherTool) WithCountry(code string) *WeatherTool {
	t.defaultCountry = code
	return t
}

// Metadata returns the tool metadata.
func (t *WeatherTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_weather_for_location",
		Description: "Get the current weather for a city: condition, temperature, feels-like, humidity and wind",
		Parameters: []ToolParameter{
			{Name: "city", ParamType: "string", Description: "City name, e.g. Atlanta", Required: true},
			{Name: "country", ParamType: "string", Description: "ISO country code to narrow the search, e.g. US", Required: false},
			{Name: "units", ParamType: "string", Description: "Temperature units", Required: false, Enum: []string{"fahrenheit", "celsius"}},
		},
	}
}

type weatherArgs struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Units   string `json:"units"`
}

// Validate rejects blank city names.
func (t *WeatherTool) Validate(args json.RawMessage) error {
	var a weatherArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("city cannot be empty")
	}
	return nil
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Admin1    string  `json:"admin1"`
		Country   string  `json:"country"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature         float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		WeatherCode         int     `json:"weather_code"`
		WindSpeed           float64 `json:"wind_speed_10m"`
		RelativeHumidity    int     `json:"relative_humidity_2m"`
	} `json:"current"`
}

// Execute geocodes the city and fetches the current forecast.
func (t *WeatherTool) Execute(ctx context.Context, args json.RawMessage, _ model.Values) (ToolResult, error) {
	var a weatherArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return InvalidArgumentsf("invalid arguments: %v", err), nil
	}
	city := strings.TrimSpace(a.City)

	country := a.Country
	if country == "" {
		country = t.defaultCountry
	}

	geoParams := url.Values{
		"name":  {city},
		"count": {"1"},
	}
	if country != "" {
		geoParams.Set("country", country)
	}

	var geo geocodingResponse
	if err := t.http.get(ctx, t.geocodingURL, geoParams, &geo); err != nil {
		return FailureResultf("geocoding failed: %v", err), nil
	}
	if len(geo.Results) == 0 {
		return FailureResultf("city '%s' not found, check the spelling or try a nearby major city", city), nil
	}
	place := geo.Results[0]

	tempUnit, windUnit := "fahrenheit", "mph"
	if strings.EqualFold(a.Units, "celsius") {
		tempUnit, windUnit = "celsius", "kmh"
	}

	forecastParams := url.Values{
		"latitude":         {strconv.FormatFloat(place.Latitude, 'f', -1, 64)},
		"longitude":        {strconv.FormatFloat(place.Longitude, 'f', -1, 64)},
		"current":          {"temperature_2m,apparent_temperature,weather_code,wind_speed_10m,relative_humidity_2m"},
		"temperature_unit": {tempUnit},
		"wind_speed_unit":  {windUnit},
		"timezone":         {"auto"},
	}

	var forecast forecastResponse
	if err := t.http.get(ctx, t.forecastURL, forecastParams, &forecast); err != nil {
		return FailureResultf("forecast failed: %v", err), nil
	}

	cur := forecast.Current
	return SuccessResult(WeatherReport{
		City:            place.Name,
		Region:          place.Admin1,
		Country:         place.Country,
		Condition:       DescribeWeatherCode(cur.WeatherCode),
		Temperature:     cur.Temperature,
		FeelsLike:       cur.ApparentTemperature,
		Humidity:        cur.RelativeHumidity,
		WindSpeed:       cur.WindSpeed,
		TemperatureUnit: tempUnit,
		WindSpeedUnit:   windUnit,
	}), nil
}
