package netaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringParseRoundTrip(t *testing.T) {
	addr := New("127.0.0.1", 4242)
	parsed, err := Parse(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)
}

func TestParseRejectsMissingPort(t *testing.T) {
	_, err := Parse("127.0.0.1")
	assert.Error(t, err)
}

func TestParseRejectsNonNumericPort(t *testing.T) {
	_, err := Parse("127.0.0.1:notaport")
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	assert.True(t, Address{}.Zero())
	assert.False(t, New("127.0.0.1", 0).Zero())
	assert.False(t, New("", 80).Zero())
}

func TestRandomPortIsWithinSpecRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := RandomPort()
		assert.GreaterOrEqual(t, p, randomPortLow)
		assert.Less(t, p, randomPortHigh)
	}
}
