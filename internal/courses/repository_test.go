package courses

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsPattern(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"python", `%python%`},
		{"100%", `%100\%%`},
		{"snake_case", `%snake\_case%`},
		{`C:\dev`, `%C:\\dev%`},
		{`%_\`, `%\%\_\\%`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, containsPattern(tc.in), tc.in)
	}
}
