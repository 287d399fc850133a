package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:    "first forwarded address wins",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 203.0.113.9"},
			want:    "198.51.100.7",
		},
		{
			name:    "garbage in forwarded list is skipped",
			headers: map[string]string{"X-Forwarded-For": "unknown, 2001:db8::1"},
			want:    "2001:db8::1",
		},
		{
			name: "real ip when forwarded list has nothing usable",
			headers: map[string]string{
				"X-Forwarded-For": "not-an-ip",
				"X-Real-IP":       " 203.0.113.12 ",
			},
			want: "203.0.113.12",
		},
		{
			name:       "remote addr host",
			remoteAddr: "192.0.2.44:51234",
			want:       "192.0.2.44",
		},
		{
			name:       "remote addr without port is returned as is",
			remoteAddr: "dashboard-proxy",
			want:       "dashboard-proxy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/queue", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}
