package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashKnownVector(t *testing.T) {
	t.Parallel()

	h := New()
	// SHA-256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.Hash(nil))
	assert.Equal(t, h.Hash([]byte("abc")), h.HashString("abc"))
}

func TestHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	assert.NotEqual(t, h.HashString("We guarantee 99.99% uptime."), h.HashString("We guarantee 99.9% uptime."))
}
