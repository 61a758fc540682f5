package forecast

import (
	"errors"
	"math"
	"testing"

	"github.com/kjstillabower/weatherlookup/internal/units"
)

// TestAggregate_SingleDay verifies that two samples on one date collapse into one
// day with max, min and both hours.
func TestAggregate_SingleDay(t *testing.T) {
	samples := []RawSample{
		{Time: "2024-01-15 12:00:00", TempC: 10.0, ConditionText: "Partly cloudy", ConditionIcon: "02d"},
		{Time: "2024-01-15 15:00:00", TempC: 9.5, ConditionText: "Light rain", ConditionIcon: "10d"},
	}
	days, err := Aggregate(samples, "07:45 AM", "04:30 PM")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("len(days) = %d, want 1", len(days))
	}
	d := days[0]
	if d.DateISO != "2024-01-15" {
		t.Errorf("DateISO = %q, want 2024-01-15", d.DateISO)
	}
	if d.MaxTempC != 10.0 || d.MinTempC != 9.5 {
		t.Errorf("max/min = %v/%v, want 10.0/9.5", d.MaxTempC, d.MinTempC)
	}
	if d.MaxTempF != units.CToF(10.0) || d.MinTempF != units.CToF(9.5) {
		t.Errorf("fahrenheit pair = %v/%v", d.MaxTempF, d.MinTempF)
	}
	if len(d.Hours) != 2 {
		t.Fatalf("len(Hours) = %d, want 2", len(d.Hours))
	}
	if d.Hours[0].TimeISO != "2024-01-15T12:00" || d.Hours[1].TimeISO != "2024-01-15T15:00" {
		t.Errorf("hours out of input order: %+v", d.Hours)
	}
	if d.ConditionText != "Partly cloudy" || d.ConditionIcon != "02d" {
		t.Errorf("condition = %q/%q, want first sample's", d.ConditionText, d.ConditionIcon)
	}
	if d.Sunrise != "07:45 AM" || d.Sunset != "04:30 PM" {
		t.Errorf("sun times = %q/%q", d.Sunrise, d.Sunset)
	}
}

// TestAggregate_CapsAndOrders verifies chronological ordering, the three-day cap
// and that max/min are drawn from the group.
func TestAggregate_CapsAndOrders(t *testing.T) {
	samples := []RawSample{
		{Time: "2024-01-16 00:00", TempC: 3},
		{Time: "2024-01-15 21:00", TempC: 5},
		{Time: "2024-01-16 03:00", TempC: -1},
		{Time: "2024-01-17 00:00", TempC: 4},
		{Time: "2024-01-18 00:00", TempC: 8},
		{Time: "2024-01-16T06:00", TempC: 7},
	}
	days, err := Aggregate(samples, "", "")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	want := []string{"2024-01-15", "2024-01-16", "2024-01-17"}
	if len(days) != len(want) {
		t.Fatalf("len(days) = %d, want %d", len(days), len(want))
	}
	for i, d := range days {
		if d.DateISO != want[i] {
			t.Errorf("days[%d].DateISO = %q, want %q", i, d.DateISO, want[i])
		}
	}
	if days[1].MaxTempC != 7 || days[1].MinTempC != -1 {
		t.Errorf("2024-01-16 max/min = %v/%v, want 7/-1", days[1].MaxTempC, days[1].MinTempC)
	}
	if len(days[1].Hours) != 3 {
		t.Errorf("2024-01-16 hours = %d, want 3", len(days[1].Hours))
	}
}

// TestAggregate_MaxIsMember checks the max/min invariants over a generated series.
func TestAggregate_MaxIsMember(t *testing.T) {
	var samples []RawSample
	for h := 0; h < 48; h += 3 {
		day := "2024-03-01"
		if h >= 24 {
			day = "2024-03-02"
		}
		samples = append(samples, RawSample{
			Time:  day + " " + twoDigit(h%24) + ":00",
			TempC: 10 * math.Sin(float64(h)/7),
		})
	}
	days, err := Aggregate(samples, "", "")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	for _, d := range days {
		foundMax, foundMin := false, false
		for _, h := range d.Hours {
			if h.TempC > d.MaxTempC || h.TempC < d.MinTempC {
				t.Errorf("%s: hour %v outside [%v,%v]", d.DateISO, h.TempC, d.MinTempC, d.MaxTempC)
			}
			foundMax = foundMax || h.TempC == d.MaxTempC
			foundMin = foundMin || h.TempC == d.MinTempC
		}
		if !foundMax || !foundMin {
			t.Errorf("%s: max/min not drawn from samples", d.DateISO)
		}
	}
}

func twoDigit(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

func TestAggregate_Empty(t *testing.T) {
	days, err := Aggregate(nil, "", "")
	if err != nil || days != nil {
		t.Errorf("Aggregate(nil) = %v, %v; want nil, nil", days, err)
	}
}

func TestAggregate_BadTimestamp(t *testing.T) {
	_, err := Aggregate([]RawSample{{Time: "yesterday", TempC: 1}}, "", "")
	if !errors.Is(err, ErrBadTimestamp) {
		t.Errorf("Aggregate() error = %v, want ErrBadTimestamp", err)
	}
}
