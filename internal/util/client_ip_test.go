package util

import (
	"net/http/httptest"
	"testing"
)

func TestNewTrustedProxies(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.10 ", ""})
	if err != nil || trusted == nil {
		t.Fatalf("expected valid allowlist, got %v err=%v", trusted, err)
	}
	if empty, err := NewTrustedProxies(nil); err != nil || empty != nil {
		t.Fatalf("expected nil allowlist for empty input, got %v err=%v", empty, err)
	}
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected parse failure")
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "untrusted peer cannot spoof via headers",
			remoteAddr: "198.51.100.10:4000",
			forwarded:  "203.0.113.5",
			realIP:     "203.0.113.6",
			want:       "198.51.100.10",
		},
		{
			name:       "trusted proxy forwards the caller",
			remoteAddr: "10.0.0.20:4000",
			forwarded:  "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "chain walk stops at first untrusted hop",
			remoteAddr: "10.0.0.20:4000",
			forwarded:  "203.0.113.5, 10.0.0.10",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip used when forwarded chain unusable",
			remoteAddr: "10.0.0.20:4000",
			forwarded:  "garbage",
			realIP:     "203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "fully trusted chain yields leftmost hop",
			remoteAddr: "10.0.0.20:4000",
			forwarded:  "10.0.0.5, 10.0.0.10",
			trusted:    trusted,
			want:       "10.0.0.5",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://shelfshare.test/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
