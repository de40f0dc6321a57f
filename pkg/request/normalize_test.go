package request

import "testing"

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"graph.mapillary.com", "mapillary"},
		{"router.project-osrm.org", "osrm"},
		{"osrm.internal:5000", "osrm"},
		{"nominatim.openstreetmap.org", "nominatim"},
		{"127.0.0.1:8080", "127.0.0.1:8080"},
		{"other.com", "other.com"},
	}

	for _, tt := range tests {
		got := normalizeProvider(tt.host)
		if got != tt.expected {
			t.Errorf("normalizeProvider(%q) = %q; want %q", tt.host, got, tt.expected)
		}
	}
}
