package voiceerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	base := Media("acquire", errors.New("permission denied"))
	wrapped := fmt.Errorf("start: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok || kind != KindMedia {
		t.Fatalf("KindOf() = %q, %v, want %q, true", kind, ok, KindMedia)
	}
	if !Is(wrapped, KindMedia) {
		t.Fatalf("Is(wrapped, media) = false, want true")
	}
	if Is(wrapped, KindSignaling) {
		t.Fatalf("Is(wrapped, signaling) = true, want false")
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf(plain) ok = true, want false")
	}
}

func TestSignalingStatusMessage(t *testing.T) {
	err := SignalingStatus("exchange_offer", 503, " upstream busy \n")
	if !err.Retryable {
		t.Fatalf("Retryable = false, want true for 503")
	}
	want := "signaling exchange_offer (status 503): upstream busy"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Fatalf("Retryable(nil) = true")
	}
	if !Retryable(SignalingStatus("fetch_credential", 429, "")) {
		t.Fatalf("Retryable(429) = false, want true")
	}
	if Retryable(SignalingStatus("fetch_credential", 401, "")) {
		t.Fatalf("Retryable(401) = true, want false")
	}
	if Retryable(Media("acquire", context.DeadlineExceeded)) {
		t.Fatalf("Retryable(media) = true, want false")
	}
	if !Retryable(Signaling("exchange_offer", context.DeadlineExceeded)) {
		t.Fatalf("Retryable(signaling timeout) = false, want true")
	}
}
