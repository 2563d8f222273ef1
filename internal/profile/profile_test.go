package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionalServices(t *testing.T) {
	got := OptionalServices()

	assert.Equal(t, []string{"180d", "1822", "180f", "ffe0", "ffe1", "ffe5", "fff0"}, got[:7])
	assert.Contains(t, got, "000015231212efde1523785feabcd123")
	assert.Contains(t, got, "aaaa")
	assert.Contains(t, got, "1d14d6eefd634fa1bfa48f47b42119f0")
	assert.Contains(t, got, "49535343fe7d4ae58fa99fafd205e455")
	assert.Contains(t, got, "6e400001b5a3f393e0a9e50e24dcca9e")
	assert.Len(t, got, 31)

	seen := map[string]bool{}
	for _, u := range got {
		assert.False(t, seen[u], "duplicate %s", u)
		seen[u] = true
	}
}
