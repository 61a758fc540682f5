package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestCategorizeError verifies stable metric labels for every taxonomy member.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, ""},
		{context.Canceled, ErrorCategoryCanceled},
		{fmt.Errorf("%w: dial tcp", ErrConnectivityLost), ErrorCategoryNetwork},
		{fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{ErrLocationNotFound, ErrorCategoryLocationNotFound},
		{ErrRateLimited, ErrorCategoryRateLimited},
		{&UpstreamError{Status: 503}, ErrorCategoryUpstream5xx},
		{&UpstreamError{Status: 418}, ErrorCategoryUpstream4xx},
		{fmt.Errorf("%w: bad json", ErrInvalidResponse), ErrorCategoryParsing},
		{errors.New("mystery"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		if got := CategorizeError(tt.err); got != tt.want {
			t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestUpstreamError(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &UpstreamError{Status: 500})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Error("UpstreamError should match ErrUpstreamFailure")
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != 500 {
		t.Errorf("errors.As = %v", ue)
	}
	if got := (&UpstreamError{Status: 502, Message: "bad gateway"}).Error(); got != "upstream failure: HTTP 502: bad gateway" {
		t.Errorf("Error() = %q", got)
	}
}

func TestStatusError_OpenWeatherMessage(t *testing.T) {
	err := statusError(401, []byte(`{"cod":401,"message":"Invalid API key. Please see https://openweathermap.org/faq#error401"}`))
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("statusError() = %v, want ErrInvalidAPIKey", err)
	}
	err = statusError(404, []byte(`{"cod":"404","message":"city not found"}`))
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != 404 || ue.Message != "city not found" {
		t.Errorf("statusError() = %v, want UpstreamError{404}", err)
	}
}
