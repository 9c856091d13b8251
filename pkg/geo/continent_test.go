package geo

import "testing"

func TestContinentOf(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"US", NorthAmerica},
		{"de", Europe},
		{"JP", Asia},
		{"BR", SouthAmerica},
		{"AU", Oceania},
		{"NG", Africa},
		{"AQ", Antarctica},
		{"ZZ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			if got := ContinentOf(tt.country); got != tt.want {
				t.Errorf("ContinentOf(%q) = %q, want %q", tt.country, got, tt.want)
			}
		})
	}
}

func TestContinentName(t *testing.T) {
	if got := ContinentName("eu"); got != "Europe" {
		t.Errorf("ContinentName(eu) = %q, want Europe", got)
	}
	if IsContinent("XX") {
		t.Error("IsContinent(XX) = true, want false")
	}
}
