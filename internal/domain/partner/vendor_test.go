package partner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVendorNormalizesCode(t *testing.T) {
	v, err := NewVendor("  acme-01 ", "Acme Industrial")
	require.NoError(t, err)
	assert.Equal(t, "ACME-01", v.Code)
	assert.Equal(t, 1, v.Version)
}

func TestNewVendorRejectsEmptyFields(t *testing.T) {
	_, err := NewVendor("   ", "Acme Industrial")
	assert.Error(t, err)

	_, err = NewVendor("ACME-01", "  ")
	assert.Error(t, err)
}

func TestVendorApplyExternalDetectsChange(t *testing.T) {
	v, err := NewVendor("ACME-01", "Acme Industrial")
	require.NoError(t, err)

	changed := v.ApplyExternal("Acme Industrial Ltd", "J. Doe", "555-0100", "po@acme.test", "1 Main St", "")
	assert.True(t, changed)
	assert.Equal(t, 2, v.Version)
	assert.Equal(t, "Acme Industrial Ltd", v.Name)
}

func TestVendorApplyExternalIdenticalIsNoOp(t *testing.T) {
	v, err := NewVendor("ACME-01", "Acme Industrial")
	require.NoError(t, err)
	v.ApplyExternal("Acme Industrial", "J. Doe", "", "", "", "")

	before := v.Version
	changed := v.ApplyExternal("Acme Industrial", "J. Doe", "", "", "", "")
	assert.False(t, changed)
	assert.Equal(t, before, v.Version, "unchanged data must not bump the version")
}
