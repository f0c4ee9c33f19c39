package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"quarters-data/internal/domain"
)

// ImportHeader 导入模板表头。Columns are matched by name (case-insensitive),
// not position, so reordered uploads still parse.
var ImportHeader = []string{
	"Svc No",
	"Full Name",
	"Category",
	"Rank",
	"Marital Status",
	"Current Unit",
	"Appointment",
	"Dependent 1 Name", "Dependent 1 Gender", "Dependent 1 Age",
	"Dependent 2 Name", "Dependent 2 Gender", "Dependent 2 Age",
	"Dependent 3 Name", "Dependent 3 Gender", "Dependent 3 Age",
	"Dependent 4 Name", "Dependent 4 Gender", "Dependent 4 Age",
	"Dependent 5 Name", "Dependent 5 Gender", "Dependent 5 Age",
	"Dependent 6 Name", "Dependent 6 Gender", "Dependent 6 Age",
	"Quarter Name",
	"Location",
	"Block Name",
	"Flat/House/Room",
	"Accommodation Type",
	"Occupancy Type",
	"Date Allocated",
}

// QueueExportHeader 队列导出表头
var QueueExportHeader = []string{
	"Sequence",
	"Svc No",
	"Full Name",
	"Category",
	"Rank",
	"Marital Status",
	"Current Unit",
	"Appointment",
	"Adult Dependents",
	"Child Dependents",
	"Date Added",
}

// GenerateImportTemplate 生成导入模板（仅表头）
func GenerateImportTemplate() ([]byte, error) {
	return buildWorkbook("Import", ImportHeader, nil)
}

// buildQueueWorkbook 生成队列导出文件
func buildQueueWorkbook(entries []*domain.QueueEntry) ([]byte, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			e.Sequence,
			e.SvcNo,
			e.FullName,
			e.Category,
			e.Rank,
			e.MaritalStatus,
			e.CurrentUnit,
			e.Appointment,
			e.AdultDependents,
			e.ChildDependents,
			e.DateAdded.Format("2006-01-02"),
		})
	}
	return buildWorkbook("Queue", QueueExportHeader, rows)
}

// buildWorkbook 生成带样式表头的 xlsx 文件
func buildWorkbook(sheetName string, headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// parseImportWorkbook 解析上传的 xlsx：first sheet, first row headers.
func parseImportWorkbook(reader io.Reader) ([]domain.ImportRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rawRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rawRows) < 2 {
		return nil, fmt.Errorf("workbook has no data rows")
	}

	// Header name → column index, normalized.
	colIdx := map[string]int{}
	for i, h := range rawRows[0] {
		colIdx[normalizeHeader(h)] = i
	}
	get := func(row []string, header string) string {
		i, ok := colIdx[normalizeHeader(header)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	getInt := func(row []string, header string) int {
		v, err := strconv.Atoi(get(row, header))
		if err != nil {
			return 0
		}
		return v
	}

	rows := make([]domain.ImportRow, 0, len(rawRows)-1)
	for _, raw := range rawRows[1:] {
		row := domain.ImportRow{
			SvcNo:         get(raw, "Svc No"),
			FullName:      get(raw, "Full Name"),
			Category:      get(raw, "Category"),
			Rank:          get(raw, "Rank"),
			MaritalStatus: get(raw, "Marital Status"),
			CurrentUnit:   get(raw, "Current Unit"),
			Appointment:   get(raw, "Appointment"),

			Dependent1Name:   get(raw, "Dependent 1 Name"),
			Dependent1Gender: get(raw, "Dependent 1 Gender"),
			Dependent1Age:    getInt(raw, "Dependent 1 Age"),
			Dependent2Name:   get(raw, "Dependent 2 Name"),
			Dependent2Gender: get(raw, "Dependent 2 Gender"),
			Dependent2Age:    getInt(raw, "Dependent 2 Age"),
			Dependent3Name:   get(raw, "Dependent 3 Name"),
			Dependent3Gender: get(raw, "Dependent 3 Gender"),
			Dependent3Age:    getInt(raw, "Dependent 3 Age"),
			Dependent4Name:   get(raw, "Dependent 4 Name"),
			Dependent4Gender: get(raw, "Dependent 4 Gender"),
			Dependent4Age:    getInt(raw, "Dependent 4 Age"),
			Dependent5Name:   get(raw, "Dependent 5 Name"),
			Dependent5Gender: get(raw, "Dependent 5 Gender"),
			Dependent5Age:    getInt(raw, "Dependent 5 Age"),
			Dependent6Name:   get(raw, "Dependent 6 Name"),
			Dependent6Gender: get(raw, "Dependent 6 Gender"),
			Dependent6Age:    getInt(raw, "Dependent 6 Age"),

			QuarterName:       get(raw, "Quarter Name"),
			Location:          get(raw, "Location"),
			BlockName:         get(raw, "Block Name"),
			FlatHouseRoomName: get(raw, "Flat/House/Room"),
			AccommodationType: get(raw, "Accommodation Type"),
			OccupancyType:     get(raw, "Occupancy Type"),
			DateAllocated:     get(raw, "Date Allocated"),
		}
		// Skip fully blank lines (trailing formatting rows are common).
		if row.SvcNo == "" && row.FullName == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
