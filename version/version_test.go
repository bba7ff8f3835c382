package version

import "testing"

func TestSupportsCatalogFormat(t *testing.T) {
	tests := []struct {
		v    string
		want bool
	}{
		{"", true},
		{"v1", true},
		{"v1.2.0", true},
		{"v2.0.0", false},
		{"1.0.0", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.v, func(t *testing.T) {
			if got := SupportsCatalogFormat(tt.v); got != tt.want {
				t.Errorf("SupportsCatalogFormat(%q) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}
