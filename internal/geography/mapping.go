package geography

import (
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Unit is a code with its human-readable name.
type Unit struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// MappingTable is an immutable lookup from a fine-grained code to every
// coarser unit it belongs to.
type MappingTable struct {
	base    Level
	parents map[string]map[Level]Unit
	names   map[string]string
}

// itlRow is one line of the ITL lookup (itl1,itl1name,itl2,itl2name,itl3,itl3name).
type itlRow struct {
	ITL1     string `csv:"itl1"`
	ITL1Name string `csv:"itl1name"`
	ITL2     string `csv:"itl2"`
	ITL2Name string `csv:"itl2name"`
	ITL3     string `csv:"itl3"`
	ITL3Name string `csv:"itl3name"`
}

// mcaRow is one line of the Local Authority to MCA lookup (la,laname,mca,mcaname).
type mcaRow struct {
	LA      string `csv:"la"`
	LAName  string `csv:"laname"`
	MCA     string `csv:"mca"`
	MCAName string `csv:"mcaname"`
}

func newMappingTable(base Level) *MappingTable {
	return &MappingTable{
		base:    base,
		parents: make(map[string]map[Level]Unit),
		names:   make(map[string]string),
	}
}

func (m *MappingTable) add(fine, fineName string, parents map[Level]Unit) {
	fine = Canonical(fine)
	if fine == "" {
		return
	}
	if fineName != "" {
		m.names[fine] = fineName
	}
	if _, ok := m.parents[fine]; !ok {
		m.parents[fine] = make(map[Level]Unit, len(parents))
	}
	for level, u := range parents {
		u.Code = Canonical(u.Code)
		if u.Code == "" {
			continue
		}
		m.parents[fine][level] = u
		if u.Name != "" {
			m.names[u.Code] = u.Name
		}
	}
}

// LoadITLMapping decodes the ITL3 → ITL2 → ITL1 lookup CSV.
func LoadITLMapping(r io.Reader) (*MappingTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geography: read itl mapping")
	}
	var rows []itlRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "geography: decode itl mapping")
	}

	m := newMappingTable(LevelITL3)
	for _, row := range rows {
		m.add(row.ITL3, row.ITL3Name, map[Level]Unit{
			LevelITL2: {Code: row.ITL2, Name: row.ITL2Name},
			LevelITL1: {Code: row.ITL1, Name: row.ITL1Name},
		})
	}
	if len(m.parents) == 0 {
		return nil, eris.New("geography: itl mapping has no rows")
	}
	return m, nil
}

// LoadMCAMapping decodes the Local Authority → MCA lookup CSV. Authorities
// without an MCA keep an empty parent. Every London borough (E09 prefix) is
// assigned the synthetic Greater London MCA.
func LoadMCAMapping(r io.Reader) (*MappingTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geography: read mca mapping")
	}
	var rows []mcaRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "geography: decode mca mapping")
	}

	m := newMappingTable(LevelLA)
	var london int
	for _, row := range rows {
		mca := Unit{Code: row.MCA, Name: row.MCAName}
		if strings.HasPrefix(Canonical(row.LA), "E09") {
			mca = Unit{Code: GreaterLondonCode, Name: GreaterLondonName}
			london++
		}
		m.add(row.LA, row.LAName, map[Level]Unit{LevelMCA: mca})
	}
	if len(m.parents) == 0 {
		return nil, eris.New("geography: mca mapping has no rows")
	}
	zap.L().Debug("geography: mca mapping loaded",
		zap.Int("authorities", len(m.parents)),
		zap.Int("london_boroughs", london),
	)
	return m, nil
}

// NewMappingTable builds a table directly from rows of fine → parents. Used by
// callers holding reference data in memory.
func NewMappingTable(base Level, names map[string]string, parents map[string]map[Level]Unit) *MappingTable {
	m := newMappingTable(base)
	for fine, p := range parents {
		m.add(fine, names[Canonical(fine)], p)
	}
	for code, name := range names {
		if _, ok := m.names[Canonical(code)]; !ok {
			m.names[Canonical(code)] = name
		}
	}
	return m
}

// Base returns the fine level the table is keyed on.
func (m *MappingTable) Base() Level {
	return m.base
}

// Parent returns the unit at level containing the fine code.
func (m *MappingTable) Parent(fine string, level Level) (Unit, bool) {
	if level == m.base {
		c := Canonical(fine)
		return Unit{Code: c, Name: m.names[c]}, true
	}
	p, ok := m.parents[Canonical(fine)]
	if !ok {
		return Unit{}, false
	}
	u, ok := p[level]
	return u, ok
}

// Name returns the display name for a code at any level.
func (m *MappingTable) Name(code string) (string, bool) {
	n, ok := m.names[Canonical(code)]
	return n, ok
}

// Len returns the number of fine codes in the table.
func (m *MappingTable) Len() int {
	return len(m.parents)
}
