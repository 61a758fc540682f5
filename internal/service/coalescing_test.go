package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weatherlookup/internal/models"
	"github.com/kjstillabower/weatherlookup/internal/provider"
)

type blockingAdapter struct {
	fakeAdapter
	release chan struct{}
	fetches atomic.Int32
}

func (b *blockingAdapter) FetchByQuery(ctx context.Context, text string) (models.CanonicalWeather, error) {
	b.fetches.Add(1)
	<-b.release
	return b.fakeAdapter.FetchByQuery(ctx, text)
}

// TestCoalescingAdapter_SharesConcurrentFetch verifies that concurrent identical
// queries result in one upstream fetch and independent copies.
func TestCoalescingAdapter_SharesConcurrentFetch(t *testing.T) {
	inner := &blockingAdapter{fakeAdapter: fakeAdapter{weather: londonWeather()}, release: make(chan struct{})}
	a := NewCoalescingAdapter(inner)

	const callers = 5
	results := make([]models.CanonicalWeather, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := a.FetchByQuery(context.Background(), " london ")
			if err != nil {
				t.Errorf("FetchByQuery() error = %v", err)
			}
			results[i] = w
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if got := inner.fetches.Load(); got != 1 {
		t.Errorf("upstream fetches = %d, want 1", got)
	}
	results[0].Days[0].DateISO = "mutated"
	if results[1].Days[0].DateISO != "2024-01-15" {
		t.Error("coalesced callers share slice backing arrays")
	}
}

func TestCoalescingAdapter_CallerDeadline(t *testing.T) {
	inner := &blockingAdapter{fakeAdapter: fakeAdapter{weather: londonWeather()}, release: make(chan struct{})}
	defer close(inner.release)
	a := NewCoalescingAdapter(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := a.FetchByQuery(ctx, "London")
	if !errors.Is(err, provider.ErrConnectivityLost) {
		t.Errorf("FetchByQuery() error = %v, want ErrConnectivityLost", err)
	}
}

func TestCoalescingAdapter_PassesSearchThrough(t *testing.T) {
	inner := &fakeAdapter{matches: []models.LocationMatch{{Name: "London"}}}
	got, err := NewCoalescingAdapter(inner).SearchLocations(context.Background(), "Lon")
	if err != nil || len(got) != 1 {
		t.Fatalf("SearchLocations() = %v, %v", got, err)
	}
}
