package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/provider"
)

// coalescingAdapter shares one upstream fetch between concurrent identical requests.
type coalescingAdapter struct {
	provider.Adapter
	group singleflight.Group
}

// NewCoalescingAdapter wraps a so that concurrent fetches with the same query
// are issued once. Searches pass through unchanged.
func NewCoalescingAdapter(a provider.Adapter) provider.Adapter {
	return &coalescingAdapter{Adapter: a}
}

func (c *coalescingAdapter) FetchByQuery(ctx context.Context, text string) (models.CanonicalWeather, error) {
	key := "q:" + strings.ToLower(strings.TrimSpace(text))
	return c.do(ctx, key, func(ctx context.Context) (models.CanonicalWeather, error) {
		return c.Adapter.FetchByQuery(ctx, text)
	})
}

func (c *coalescingAdapter) FetchByCoordinates(ctx context.Context, lat, lon float64) (models.CanonicalWeather, error) {
	key := "c:" + models.CoordinateQuery(lat, lon).String()
	return c.do(ctx, key, func(ctx context.Context) (models.CanonicalWeather, error) {
		return c.Adapter.FetchByCoordinates(ctx, lat, lon)
	})
}

// do runs fn once per key. The shared call is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx is done.
func (c *coalescingAdapter) do(ctx context.Context, key string, fn func(context.Context) (models.CanonicalWeather, error)) (models.CanonicalWeather, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescedTotal.WithLabelValues("fetch").Inc()
		}
		if res.Err != nil {
			return models.CanonicalWeather{}, res.Err
		}
		return res.Val.(models.CanonicalWeather).Clone(), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.CanonicalWeather{}, fmt.Errorf("%w: %v", provider.ErrConnectivityLost, ctx.Err())
		}
		return models.CanonicalWeather{}, ctx.Err()
	}
}
