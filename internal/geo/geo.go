// Package geo resolves the device position for coordinate weather queries.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultTimeout bounds a single position acquisition.
const DefaultTimeout = 10 * time.Second

var (
	ErrDenied      = errors.New("geolocation denied")
	ErrUnavailable = errors.New("geolocation unavailable")
	ErrTimeout     = errors.New("geolocation timed out")
)

// Position is a WGS84 coordinate pair.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether p lies within latitude/longitude bounds.
func (p Position) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Locator produces the current position.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// Acquire asks locator for a position, giving up after timeout (DefaultTimeout when
// zero). A nil locator is treated as unsupported and reports ErrUnavailable.
func Acquire(ctx context.Context, locator Locator, timeout time.Duration) (Position, error) {
	if locator == nil {
		return Position{}, fmt.Errorf("%w: no locator configured", ErrUnavailable)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := locator.Locate(ctx)
		ch <- result{pos, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
				return Position{}, ErrTimeout
			}
			return Position{}, r.err
		}
		if !r.pos.Valid() {
			return Position{}, fmt.Errorf("%w: position out of range", ErrUnavailable)
		}
		return r.pos, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Position{}, ErrTimeout
		}
		return Position{}, ctx.Err()
	}
}

// StaticLocator returns a fixed configured position.
type StaticLocator struct {
	Position *Position
	Enabled  bool
}

// Locate returns the configured position, or ErrDenied when disabled or unset.
func (s StaticLocator) Locate(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if !s.Enabled || s.Position == nil {
		return Position{}, ErrDenied
	}
	return *s.Position, nil
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Position, error)

func (f LocatorFunc) Locate(ctx context.Context) (Position, error) { return f(ctx) }
