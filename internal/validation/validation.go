package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxQueryLen bounds location text in runes.
	MaxQueryLen = 100
	// MinSearchLen is the shortest text worth sending to a location search.
	MinSearchLen = 2
)

// ErrInvalidQuery is the parent of every validation failure.
var ErrInvalidQuery = errors.New("invalid query")

var (
	ErrLocationEmpty        = fmt.Errorf("%w: location is required", ErrInvalidQuery)
	ErrLocationTooLong      = fmt.Errorf("%w: location too long", ErrInvalidQuery)
	ErrLocationInvalidChars = fmt.Errorf("%w: location contains invalid characters", ErrInvalidQuery)
	ErrCoordinatesInvalid   = fmt.Errorf("%w: coordinates out of range", ErrInvalidQuery)
)

// ValidateLocation trims input, enforces the rune length bound and restricts
// characters to letters, digits, space and the punctuation found in place
// names. Returns the trimmed text.
func ValidateLocation(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrLocationEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// SearchText trims input and reports whether it is long enough to search for.
func SearchText(input string) (string, bool) {
	s := strings.TrimSpace(input)
	return s, len([]rune(s)) >= MinSearchLen
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	// Pd covers hyphens and en/em dashes.
	if unicode.Is(unicode.Pd, r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '\u2018', '\u2019', '/', '(', ')', '&':
		return true
	}
	return false
}

// ValidateCoordinates checks latitude in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrCoordinatesInvalid, lat, lon)
	}
	return nil
}

// ParseCoordinates parses and validates a latitude/longitude string pair.
func ParseCoordinates(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: latitude %q", ErrCoordinatesInvalid, latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: longitude %q", ErrCoordinatesInvalid, lonStr)
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
