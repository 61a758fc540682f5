package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultIPLookupURL is an ip-api compatible endpoint.
const DefaultIPLookupURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPLocator estimates position from the caller's public IP address.
type IPLocator struct {
	URL    string
	Client *http.Client
}

// NewIPLocator returns an IPLocator for url (DefaultIPLookupURL when empty).
func NewIPLocator(url string, timeout time.Duration) *IPLocator {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &IPLocator{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Locate queries the lookup service. A 403 means the service refused us and maps
// to ErrDenied. Deadline and client timeouts are ErrTimeout; other transport
// failures and non-success payloads are ErrUnavailable.
func (l *IPLocator) Locate(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return Position{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return Position{}, ErrDenied
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Position{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	res := gjson.ParseBytes(body)
	if status := res.Get("status").String(); status != "success" {
		return Position{}, fmt.Errorf("%w: %s", ErrUnavailable, res.Get("message").String())
	}
	lat, lon := res.Get("lat"), res.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return Position{}, fmt.Errorf("%w: missing coordinates", ErrUnavailable)
	}
	return Position{Latitude: lat.Float(), Longitude: lon.Float()}, nil
}
