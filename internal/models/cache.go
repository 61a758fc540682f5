package models

import "strconv"

// QueryLocation is what the user asked for: free text or a coordinate pair.
type QueryLocation struct {
	Text string   `json:"text,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// TextQuery builds a free-text QueryLocation.
func TextQuery(text string) QueryLocation {
	return QueryLocation{Text: text}
}

// CoordinateQuery builds a coordinate QueryLocation.
func CoordinateQuery(lat, lon float64) QueryLocation {
	return QueryLocation{Lat: &lat, Lon: &lon}
}

// IsCoordinates reports whether the query is a coordinate pair.
func (q QueryLocation) IsCoordinates() bool {
	return q.Lat != nil && q.Lon != nil
}

// IsZero reports whether no query was recorded.
func (q QueryLocation) IsZero() bool {
	return q.Text == "" && !q.IsCoordinates()
}

func (q QueryLocation) String() string {
	if q.IsCoordinates() {
		return strconv.FormatFloat(*q.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(*q.Lon, 'f', -1, 64)
	}
	return q.Text
}

// CacheEntry is the persisted last-good snapshot.
type CacheEntry struct {
	Snapshot          CanonicalWeather `json:"snapshot"`
	CapturedAtEpochMs int64            `json:"capturedAtEpochMs"`
	QueryLocation     QueryLocation    `json:"queryLocation"`
}
