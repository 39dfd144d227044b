package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogForTest(t *testing.T) []componentSpec {
	t.Helper()
	catalog, err := loadComponentCatalog()
	require.NoError(t, err)
	return catalog
}

func TestAssembleExamDataJoinsExpandedRow(t *testing.T) {
	catalog := catalogForTest(t)

	main := Row{"account_code": "100", "code": "7"}
	exp := Row{"ob_right_sph": "125", "ob_left_sph": "-075"}

	data := assembleExamData(catalog, main, exp)
	objective, ok := data["objective"].(map[string]any)
	require.True(t, ok, "objective component missing")

	assert.Equal(t, 1.25, objective["r_sph"])
	assert.Equal(t, -0.75, objective["l_sph"])
}

func TestAssembleExamDataDropsAllNullComponents(t *testing.T) {
	catalog := catalogForTest(t)

	data := assembleExamData(catalog, Row{}, nil)
	assert.Empty(t, data)
}

func TestAssembleExamDataKeratometerAstigmatism(t *testing.T) {
	catalog := catalogForTest(t)

	main := Row{
		"ker_r_k1": "750", "ker_r_k2": "775",
		"ker_l_k1": "750", "ker_l_k2": "750",
	}

	data := assembleExamData(catalog, main, nil)
	full, ok := data["keratometer-full"].(map[string]any)
	require.True(t, ok, "keratometer-full component missing")

	assert.Equal(t, true, full["r_astig"])
	assert.Equal(t, false, full["l_astig"])
}

func TestAssembleExamDataVisualAcuityScaling(t *testing.T) {
	catalog := catalogForTest(t)

	exp := Row{"sb_right_va": "12", "sb_left_va": "0.8"}
	data := assembleExamData(catalog, Row{}, exp)
	subjective, ok := data["subjective"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 1.2, subjective["r_va"])
	assert.Equal(t, 0.8, subjective["l_va"])
}
