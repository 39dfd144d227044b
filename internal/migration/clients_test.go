package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acc(code, head, last string) *legacyAccount {
	return &legacyAccount{AccountCode: code, HeadOfFamily: head, LastName: last}
}

func TestGroupFamiliesThreeHeads(t *testing.T) {
	accounts := []*legacyAccount{
		acc("100", "100", "לוי"),
		acc("101", "100", "לוי-כהן"),
		acc("102", "100", "לוי"),
		acc("103", "100", "אחר"),
		acc("200", "200", "מזרחי"),
		acc("201", "200", "מזרחי"),
		acc("202", "200", "מזרחי"),
		acc("301", "300", "פרץ"),
		acc("302", "300", "פרץ"),
		acc("303", "300", "אברהם"),
	}

	groups := groupFamilies(accounts)
	require.Len(t, groups, 3)

	assert.Equal(t, "100", groups[0].Head)
	assert.Equal(t, "לוי", groups[0].Name)
	assert.Len(t, groups[0].Members, 4)

	assert.Equal(t, "מזרחי", groups[1].Name)
	assert.Len(t, groups[1].Members, 3)

	// Head 300 has no row of its own, so the name falls back to the first
	// member's last name.
	assert.Equal(t, "פרץ", groups[2].Name)
	assert.Len(t, groups[2].Members, 3)
}

func TestGroupFamiliesSkipsHeadless(t *testing.T) {
	accounts := []*legacyAccount{
		acc("100", "", "לוי"),
		acc("200", "200", "מזרחי"),
	}
	groups := groupFamilies(accounts)
	require.Len(t, groups, 1)
	assert.Equal(t, "200", groups[0].Head)
}

func TestParseAccountRow(t *testing.T) {
	row := Row{
		"account_code":  "A0123",
		"first_name":    "דנה",
		"last_name":     "כהן",
		"gender":        "2",
		"date_of_birth": "15/03/1988",
		"street":        "הרצל",
		"house":         "12",
		"apartment":     "4",
	}

	got := parseAccountRow(row)
	assert.Equal(t, "female", got.Gender)
	assert.Equal(t, "הרצל 12/4", got.Address)
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, "1988-03-15", got.DateOfBirth.Format("2006-01-02"))
}

func TestMapGenderUnknownIsEmpty(t *testing.T) {
	assert.Equal(t, "", mapGender("3"))
	assert.Equal(t, "male", mapGender("1"))
}
