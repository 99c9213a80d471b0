package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"subdomain kept", "http://mail.google.com/x", "mail.google.com"},
		{"bare registrable domain", "https://google.com/search?q=go", "google.com"},
		{"deep subdomain", "https://a.b.example.co.uk/path", "a.b.example.co.uk"},
		{"port stripped", "http://example.com:8080/x", "example.com"},
		{"upper-cased host", "HTTP://WWW.Example.COM/", "www.example.com"},
		{"trailing dot", "http://example.com./x", "example.com"},
		{"schemeless", "mail.google.com/inbox", "mail.google.com"},
		{"localhost kept verbatim", "http://localhost:5600/api", "localhost"},
		{"ip kept", "http://192.168.1.10/admin", "192.168.1.10"},
		{"empty", "", "unknown"},
		{"whitespace only", "   ", "unknown"},
		{"garbage", "::::", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RegistrableDomain(tt.url))
		})
	}
}
