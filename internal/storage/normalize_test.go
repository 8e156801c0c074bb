package storage

import "testing"

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ForcesHTTPS", "http://example.com/page", "https://example.com/page"},
		{"StripsWWW", "https://www.example.com/page", "https://example.com/page"},
		{"StripsTrailingSlash", "https://example.com/page/", "https://example.com/page"},
		{"DropsBareRootPath", "https://example.com/", "https://example.com"},
		{"LowercasesHost", "https://EXAMPLE.com/Page", "https://example.com/Page"},
		{"StripsFragment", "https://example.com/page#section", "https://example.com/page"},
		{
			"StripsTrackingParams",
			"https://example.com/page?utm_source=x&utm_medium=y&utm_campaign=z&utm_content=c&utm_term=t&fbclid=f&gclid=g",
			"https://example.com/page",
		},
		{"KeepsRealParams", "https://example.com/search?q=go&utm_source=x", "https://example.com/search?q=go"},
		{"NoHostUnchanged", "notaurl", "notaurl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeURL(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// Normalizing a canonical URL must be the identity.
			if again := NormalizeURL(got); again != got {
				t.Errorf("not idempotent: NormalizeURL(%q) = %q", got, again)
			}
		})
	}
}
