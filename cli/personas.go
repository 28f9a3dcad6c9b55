// Pre-built agent personas for CLI commands.
//
// Information Hiding:
// - System prompts hidden
// - Structured answer schemas hidden behind Persona.Config

package cli

import (
	"fmt"
	"strings"

	"github.com/richinex/toolthread/agent"
	"github.com/richinex/toolthread/schema"
)

// Persona names a pre-built agent configuration.
type Persona string

const (
	PersonaWeather     Persona = "weather"
	PersonaTime        Persona = "time"
	PersonaTemperature Persona = "temperature"
)

// TimeReport is the structured answer of the time persona.
type TimeReport struct {
	TimeZone  string `json:"timeZone" jsonschema:"description=IANA timezone of the city"`
	Date      string `json:"date" jsonschema:"description=Local date"`
	Time      string `json:"time" jsonschema:"description=Local time"`
	DayOfWeek string `json:"dayOfWeek" jsonschema:"description=Local day of the week"`
	Summary   string `json:"summary,omitempty" jsonschema:"description=A funny and informative one-liner about the moment"`
}

// TemperatureReport is the structured answer of the temperature persona.
type TemperatureReport struct {
	Response                string `json:"response" jsonschema:"description=Answer for the user"`
	TemperatureInCelsius    string `json:"temperatureInCelsius,omitempty"`
	TemperatureInFahrenheit string `json:"temperatureInFahrenheit,omitempty"`
}

var (
	timeReportSchema        = schema.MustFor[TimeReport]("time_report", "Current local time for a city")
	temperatureReportSchema = schema.MustFor[TemperatureReport]("temperature_report", "Current temperature for a city")
)

const weatherPrompt = `You are an expert weather forecaster who always speaks in puns.
You have access to two tools:
- get_weather_for_location: use this to get real weather for a specific city
- get_user_location: use this if the user does not mention a city

Always respond in a punny, fun way. After getting weather data, give a complete
response with the actual temperature, conditions, humidity and wind speed,
but make it funny and full of weather puns!`

const timePrompt = `You are a helpful timezone assistant.
You answer questions about the current time in a city using get_current_time.
If the user asks about "my city", call get_city_from_user first.
Include the timezone, date, time and day of week. The summary should be funny and informative.`

const temperaturePrompt = `You are a helpful assistant that can answer the temperature of a city.
You give the temperature in Celsius, and in Fahrenheit when you know it.
You can only answer the temperature of a city and should not provide any other information.
If you don't know the temperature of a city, say that you don't know the temperature.
If the user just greets you, introduce yourself briefly and ask for a city name.
Use ask_user to ask for the city when none was given, and get_weather_for_location to look it up.`

// PersonaInfo describes a persona for listings.
type PersonaInfo struct {
	Name        Persona
	Description string
}

// ListPersonas returns the available personas.
func ListPersonas() []PersonaInfo {
	return []PersonaInfo{
		{PersonaWeather, "Weather forecaster that speaks in puns"},
		{PersonaTime, "Timezone assistant; structured answers use TimeReport"},
		{PersonaTemperature, "Temperature lookup; structured answers use TemperatureReport"},
	}
}

// ParsePersona parses a persona name (case-insensitive). Empty means weather.
func ParsePersona(name string) (Persona, error) {
	switch p := Persona(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PersonaWeather, nil
	case PersonaWeather, PersonaTime, PersonaTemperature:
		return p, nil
	default:
		return "", fmt.Errorf("unknown persona: %q", name)
	}
}

// Schema returns the structured answer schema of the persona, or nil when it
// only answers in free text.
func (p Persona) Schema() *schema.Descriptor {
	switch p {
	case PersonaTime:
		return timeReportSchema
	case PersonaTemperature:
		return temperatureReportSchema
	default:
		return nil
	}
}

// Config builds the agent configuration. With structured set the persona's
// schema becomes the required answer format.
func (p Persona) Config(maxRounds int, structured bool) (agent.Config, error) {
	var builder *agent.Builder

	switch p {
	case PersonaWeather:
		builder = agent.NewBuilder("weather").
			Description("Weather forecaster with puns").
			SystemPrompt(weatherPrompt)
	case PersonaTime:
		builder = agent.NewBuilder("time").
			Description("Timezone assistant").
			SystemPrompt(timePrompt)
	case PersonaTemperature:
		builder = agent.NewBuilder("temperature").
			Description("Temperature assistant").
			SystemPrompt(temperaturePrompt)
	default:
		return agent.Config{}, fmt.Errorf("unknown persona: %q", p)
	}

	if structured {
		desc := p.Schema()
		if desc == nil {
			return agent.Config{}, fmt.Errorf("persona %s has no structured answer format", p)
		}
		builder = builder.ResponseSchema(desc)
	}

	return builder.MaxRounds(maxRounds).Build(), nil
}
