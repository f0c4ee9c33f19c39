package httpapi

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"quarters-data/internal/domain"
)

func TestGenerateImportTemplate(t *testing.T) {
	data, err := GenerateImportTemplate()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"Import"}, sheets)

	rows, err := f.GetRows("Import")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ImportHeader, rows[0])
}

func TestParseImportWorkbook_RoundTrip(t *testing.T) {
	data, err := buildWorkbook("Import", ImportHeader, [][]any{
		{
			"N/12345", "John Okoro", "Officer", "Maj", "Married", "DHQ Garrison", "SO2 Ops",
			"Amaka Okoro", "Female", 33,
			"Kelechi Okoro", "Male", 5,
			"", "", "",
			"", "", "",
			"", "", "",
			"", "", "",
			"Eagle Quarters", "Mogadishu Cantonment", "2", "Flat 5",
			"Three Bedroom Flat", "Family", "2023-06-15",
		},
		{
			"", "", "", "", "", "", "",
			"", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "",
			"", "", "", "", "", "", "", // blank formatting row, must be skipped
		},
	})
	require.NoError(t, err)

	rows, err := parseImportWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "N/12345", row.SvcNo)
	assert.Equal(t, "John Okoro", row.FullName)
	assert.Equal(t, "Officer", row.Category)
	assert.Equal(t, "Maj", row.Rank)
	assert.Equal(t, "Amaka Okoro", row.Dependent1Name)
	assert.Equal(t, 33, row.Dependent1Age)
	assert.Equal(t, "Kelechi Okoro", row.Dependent2Name)
	assert.Equal(t, 5, row.Dependent2Age)
	assert.Equal(t, "Eagle Quarters", row.QuarterName)
	assert.Equal(t, "Flat 5", row.FlatHouseRoomName)
	assert.Equal(t, "2023-06-15", row.DateAllocated)

	deps := row.DependentList()
	require.Len(t, deps, 2)
	assert.Equal(t, "Amaka Okoro", deps[0].Name)
}

func TestParseImportWorkbook_HeadersMatchedByName(t *testing.T) {
	// Reordered columns still parse because headers are matched by name.
	data, err := buildWorkbook("Sheet A", []string{"Full Name", "svc  no", "Quarter Name"}, [][]any{
		{"John Okoro", "N/12345", "Eagle Quarters"},
	})
	require.NoError(t, err)

	rows, err := parseImportWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "N/12345", rows[0].SvcNo)
	assert.Equal(t, "John Okoro", rows[0].FullName)
	assert.Equal(t, "Eagle Quarters", rows[0].QuarterName)
}

func TestParseImportWorkbook_NoDataRows(t *testing.T) {
	data, err := GenerateImportTemplate()
	require.NoError(t, err)

	_, err = parseImportWorkbook(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestBuildQueueWorkbook(t *testing.T) {
	added := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	data, err := buildQueueWorkbook([]*domain.QueueEntry{
		{
			Sequence:        1,
			SvcNo:           "N/11111",
			FullName:        "Adamu Bello",
			Category:        domain.CategoryOfficer,
			Rank:            "Capt",
			MaritalStatus:   "Single",
			AdultDependents: 0,
			ChildDependents: 0,
			DateAdded:       added,
		},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Queue")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, QueueExportHeader, rows[0])
	assert.Equal(t, "N/11111", rows[1][1])
	assert.Equal(t, "2024-03-01", rows[1][10])
}
