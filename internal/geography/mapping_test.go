package geography

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itlCSV = `itl1,itl1name,itl2,itl2name,itl3,itl3name
TLC,North East,TLC3,Tees Valley,TLC31,Hartlepool and Stockton-on-Tees
TLC,North East,TLC3,Tees Valley,TLC32,South Teesside
TLC,North East,TLC4,Northumberland and Tyne and Wear,TLC41,Sunderland
TLL,Wales,TLL1,West Wales,TLL11,Isle of Anglesey
`

const mcaCSV = `la,laname,mca,mcaname
E06000001,Hartlepool,E47000006,Tees Valley
E06000002,Middlesbrough,E47000006,Tees Valley
E09000001,City of London,,
E09000033,Westminster,,
E06000052,Cornwall,,
`

func TestLoadITLMapping(t *testing.T) {
	m, err := LoadITLMapping(strings.NewReader(itlCSV))
	require.NoError(t, err)

	assert.Equal(t, LevelITL3, m.Base())
	assert.Equal(t, 4, m.Len())

	u, ok := m.Parent("TLC31", LevelITL2)
	require.True(t, ok)
	assert.Equal(t, Unit{Code: "TLC3", Name: "Tees Valley"}, u)

	u, ok = m.Parent("tlc41", LevelITL1)
	require.True(t, ok)
	assert.Equal(t, "TLC", u.Code)

	u, ok = m.Parent("TLC32", LevelITL3)
	require.True(t, ok)
	assert.Equal(t, Unit{Code: "TLC32", Name: "South Teesside"}, u)

	_, ok = m.Parent("TLZ99", LevelITL1)
	assert.False(t, ok)

	name, ok := m.Name("TLL")
	require.True(t, ok)
	assert.Equal(t, "Wales", name)
}

func TestLoadMCAMapping_GreaterLondon(t *testing.T) {
	m, err := LoadMCAMapping(strings.NewReader(mcaCSV))
	require.NoError(t, err)

	u, ok := m.Parent("E09000001", LevelMCA)
	require.True(t, ok)
	assert.Equal(t, Unit{Code: GreaterLondonCode, Name: GreaterLondonName}, u)

	u, ok = m.Parent("E09000033", LevelMCA)
	require.True(t, ok)
	assert.Equal(t, GreaterLondonCode, u.Code)

	u, ok = m.Parent("E06000002", LevelMCA)
	require.True(t, ok)
	assert.Equal(t, "E47000006", u.Code)

	_, ok = m.Parent("E06000052", LevelMCA)
	assert.False(t, ok, "authority outside every MCA has no parent")

	name, ok := m.Name("E47000006")
	require.True(t, ok)
	assert.Equal(t, "Tees Valley", name)
}

func TestLoadITLMapping_Empty(t *testing.T) {
	_, err := LoadITLMapping(strings.NewReader("itl1,itl1name,itl2,itl2name,itl3,itl3name\n"))
	assert.Error(t, err)
}

func TestNewMappingTable(t *testing.T) {
	m := NewMappingTable(LevelITL3,
		map[string]string{"TLC31": "Hartlepool"},
		map[string]map[Level]Unit{
			"TLC31": {LevelITL1: {Code: "TLC", Name: "North East"}},
		},
	)
	u, ok := m.Parent("TLC31", LevelITL1)
	require.True(t, ok)
	assert.Equal(t, "North East", u.Name)

	name, ok := m.Name("TLC31")
	require.True(t, ok)
	assert.Equal(t, "Hartlepool", name)
}
