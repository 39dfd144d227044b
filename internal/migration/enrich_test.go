package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergePreferExisting(t *testing.T) {
	existing := map[string]any{"r_sph": -1.25, "l_sph": nil}
	incoming := map[string]any{"r_sph": -2.0, "l_sph": -0.75, "r_va": 0.9}

	merged := mergePreferExisting(existing, incoming)

	assert.Equal(t, -1.25, merged["r_sph"], "existing non-null value must win")
	assert.Equal(t, -0.75, merged["l_sph"], "null existing value is filled")
	assert.Equal(t, 0.9, merged["r_va"], "missing key is filled")
}

func TestMergePreferExistingNilBase(t *testing.T) {
	merged := mergePreferExisting(nil, map[string]any{"r_va": 1.0})
	assert.Equal(t, 1.0, merged["r_va"])
}

func TestOverRefractionDropsNulls(t *testing.T) {
	row := Row{"r_sph": "125", "r_va": "", "l_sph": ""}
	component := overRefraction(row)

	assert.Equal(t, map[string]any{"r_sph": 1.25}, component)
}
