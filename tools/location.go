// Location Tools.
//
// Information Hiding:
// - User directory lookup hidden
// - Session context key hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/toolthread/model"
)

// UserIDKey is the session context key read by get_city_from_user.
const UserIDKey = "user_id"

// DefaultUserLocation is returned by get_user_location when none is set.
const DefaultUserLocation = "New York"

// DefaultDirectory maps user ids to their home cities.
func DefaultDirectory() map[string]string {
	return map[string]string{
		"1": "Atlanta",
		"2": "Paris",
	}
}

// CityLookupTool resolves the caller's city from the session context.
type CityLookupTool struct {
	directory map[string]string
}

// NewCityLookupTool creates the tool. A nil directory uses DefaultDirectory.
func NewCityLookupTool(directory map[string]string) *CityLookupTool {
	if directory == nil {
		directory = DefaultDirectory()
	}
	copied := make(map[string]string, len(directory))
	for k, v := range directory {
		copied[k] = v
	}
	return &CityLookupTool{directory: copied}
}

// Metadata returns the tool metadata.
func (t *CityLookupTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_city_from_user",
		Description: "Look up the current user's city from their profile",
	}
}

// Execute reads user_id from the session context.
func (t *CityLookupTool) Execute(_ context.Context, _ json.RawMessage, values model.Values) (ToolResult, error) {
	id, ok := values.String(UserIDKey)
	if !ok || strings.TrimSpace(id) == "" {
		return FailureResultf("no %s in session context", UserIDKey), nil
	}
	if city, ok := t.directory[id]; ok {
		return SuccessResult(city), nil
	}
	return SuccessResult(fmt.Sprintf("Unknown location for user_id: %s", id)), nil
}

// UserLocationTool returns a fixed location for the user.
type UserLocationTool struct {
	location string
}

// NewUserLocationTool creates the tool. An empty location uses
// DefaultUserLocation.
func NewUserLocationTool(location string) *UserLocationTool {
	if location == "" {
		location = DefaultUserLocation
	}
	return &UserLocationTool{location: location}
}

// Metadata returns the tool metadata.
func (t *UserLocationTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_user_location",
		Description: "Get the user's current location when they ask about weather where they are",
	}
}

// Execute returns the configured location.
func (t *UserLocationTool) Execute(context.Context, json.RawMessage, model.Values) (ToolResult, error) {
	return SuccessResult(t.location), nil
}
