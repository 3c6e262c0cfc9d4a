package ticketnumber

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullPattern = regexp.MustCompile(`^TKT-\d{8}-[0-9A-F]{6}$`)

func TestNextFormat(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return fixed }))

	n, err := g.Next()
	require.NoError(t, err)
	assert.Regexp(t, fullPattern, n)
	assert.Equal(t, "TKT-20250101-", n[:13])
}

func TestNextNoCollisionsForReasonableN(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		n, err := g.Next()
		require.NoError(t, err)
		if _, dup := seen[n]; dup {
			t.Fatalf("collision after %d numbers: %s", i, n)
		}
		seen[n] = struct{}{}
	}
}

func TestFromSubject(t *testing.T) {
	cases := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"Re: your request [TKT-20250101-ABCDEF]", "TKT-20250101-ABCDEF", true},
		{"[TKT-20241231-0A1B2C] urgent", "TKT-20241231-0A1B2C", true},
		{"FW: помощь [TKT-20250101-ZZ99ZZ] please", "TKT-20250101-ZZ99ZZ", true},
		{"TKT-20250101-ABCDEF without brackets", "", false},
		{"[TKT-2025011-ABCDEF] short date", "", false},
		{"[TKT-20250101-abcdef] lowercase suffix", "", false},
		{"plain subject", "", false},
	}
	for _, tc := range cases {
		got, ok := FromSubject(tc.subject)
		assert.Equal(t, tc.ok, ok, tc.subject)
		assert.Equal(t, tc.want, got, tc.subject)
	}
}

func TestNextUsesInjectedRand(t *testing.T) {
	g := NewGenerator(
		WithClock(func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }),
		WithRand(zeroReader{}),
	)
	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "TKT-20250615-000000", n)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
