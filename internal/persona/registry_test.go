package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry(Seed())

	cfg, err := reg.Resolve("sun-shield")
	require.NoError(t, err)
	assert.Equal(t, "Helia Sun Shield", cfg.DisplayName)
	assert.NotEmpty(t, cfg.SystemPrompt)
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := NewRegistry(Seed())

	_, err := reg.Resolve("moon-base")
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestRegistryListKeepsSeedOrder(t *testing.T) {
	seed := Seed()
	reg := NewRegistry(seed)

	got := reg.List()
	require.Len(t, got, len(seed))
	for i := range seed {
		assert.Equal(t, seed[i].ID, got[i].ID)
	}
}

func TestRegistryHasDefaultPersona(t *testing.T) {
	reg := NewRegistry(Seed())

	_, err := reg.Resolve(DefaultID)
	assert.NoError(t, err)
}
