package service

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/weatherlookup/internal/forecast"
	"github.com/kjstillabower/weatherlookup/internal/geo"
	"github.com/kjstillabower/weatherlookup/internal/provider"
	"github.com/kjstillabower/weatherlookup/internal/units"
	"github.com/kjstillabower/weatherlookup/internal/validation"
)

// Category is the stable label of a classified failure.
type Category string

const (
	CategorySearchFailed           Category = "search_failed"
	CategoryLocationNotFound       Category = "location_not_found"
	CategoryUpstreamError          Category = "upstream_error"
	CategoryAuthError              Category = "auth_error"
	CategoryRateLimited            Category = "rate_limited"
	CategoryConnectivityLost       Category = "connectivity_lost"
	CategoryGeolocationDenied      Category = "geolocation_denied"
	CategoryGeolocationUnavailable Category = "geolocation_unavailable"
	CategoryGeolocationTimeout     Category = "geolocation_timeout"
	CategoryInvalidInput           Category = "invalid_input"
	CategoryUnknown                Category = "unknown"
)

const (
	msgSearchFailed           = "Search failed"
	msgLocationNotFound       = "City not found. Please check the spelling and try again."
	msgUpstreamError          = "Weather service error (HTTP %d). Please try again."
	msgAuthError              = "API key error. Please check your configuration."
	msgRateLimited            = "Too many requests. Please try again later."
	msgConnectivityLost       = "No internet connection. Showing cached data if available."
	msgGeolocationDenied      = "Location access denied. Please enable location services."
	msgGeolocationUnavailable = "Location information unavailable."
	msgGeolocationTimeout     = "Location request timed out."
	msgInvalidInput           = "Invalid input."
	msgUnknown                = "Failed to fetch weather data"
)

// Classify maps an error from any layer to its category and user-facing message.
func Classify(err error) (Category, string) {
	var upstream *provider.UpstreamError
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, provider.ErrSearchFailed):
		return CategorySearchFailed, msgSearchFailed
	case errors.Is(err, provider.ErrLocationNotFound):
		return CategoryLocationNotFound, msgLocationNotFound
	case errors.Is(err, provider.ErrInvalidAPIKey):
		return CategoryAuthError, msgAuthError
	case errors.Is(err, provider.ErrRateLimited):
		return CategoryRateLimited, msgRateLimited
	case errors.Is(err, provider.ErrConnectivityLost):
		return CategoryConnectivityLost, msgConnectivityLost
	case errors.As(err, &upstream):
		return CategoryUpstreamError, fmt.Sprintf(msgUpstreamError, upstream.Status)
	case errors.Is(err, geo.ErrDenied):
		return CategoryGeolocationDenied, msgGeolocationDenied
	case errors.Is(err, geo.ErrUnavailable):
		return CategoryGeolocationUnavailable, msgGeolocationUnavailable
	case errors.Is(err, geo.ErrTimeout):
		return CategoryGeolocationTimeout, msgGeolocationTimeout
	case errors.Is(err, units.ErrInvalidInput),
		errors.Is(err, validation.ErrInvalidQuery),
		errors.Is(err, forecast.ErrBadTimestamp):
		return CategoryInvalidInput, msgInvalidInput
	}
	return CategoryUnknown, msgUnknown
}
