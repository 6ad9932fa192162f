package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"  ", ""},
		{"codebench", "/codebench"},
		{"/codebench", "/codebench"},
		{"/codebench/", "/codebench"},
		{"/tools/codebench//", "/tools/codebench"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeBasePath(tc.in), "normalizeBasePath(%q)", tc.in)
	}
}
