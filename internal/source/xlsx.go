package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// Number formats used for date cells written by WriteXLSX. They render in
// layouts core.ParseDate understands, so written files read back as dates.
const (
	xlsxDateFormat     = "yyyy-mm-dd"
	xlsxDateTimeFormat = "yyyy-mm-dd hh:mm:ss"
)

// ReadXLSX loads one worksheet. The first row holds column names; column
// types are inferred from the cells below it.
func ReadXLSX(path string, sheet config.SheetRef) (*core.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	name, err := resolveSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	text, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("%s: sheet %q is empty", path, name)
	}

	headers := headerNames(text[0])
	columns := make([][]cell, len(headers))
	for r := 1; r < len(text); r++ {
		if blankRow(text[r]) {
			continue
		}
		for c := range headers {
			columns[c] = append(columns[c], cell{raw: at(raw, r, c), text: at(text, r, c)})
		}
	}

	cols := make([]core.Column, len(headers))
	values := make([][]core.Value, len(headers))
	for c, name := range headers {
		typ, vals := inferColumn(columns[c])
		cols[c] = core.Column{Name: name, Type: typ}
		values[c] = vals
	}

	ds := core.NewDataset(cols...)
	nrows := 0
	if len(columns) > 0 {
		nrows = len(columns[0])
	}
	ds.Rows = make([]core.Row, nrows)
	for r := range ds.Rows {
		row := make(core.Row, len(cols))
		for c := range cols {
			row[c] = values[c][r]
		}
		ds.Rows[r] = row
	}
	return ds, nil
}

// SheetNames lists the worksheets of a workbook in order.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}

func resolveSheet(f *excelize.File, sheet config.SheetRef) (string, error) {
	sheets := f.GetSheetList()
	if sheet.Name != "" {
		for _, s := range sheets {
			if s == sheet.Name {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", sheet.Name, strings.Join(sheets, ", "))
	}
	if sheet.Index < 0 || sheet.Index >= len(sheets) {
		return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", sheet.Index, len(sheets))
	}
	return sheets[sheet.Index], nil
}

// headerNames turns the header row into unique, non-empty column names.
// Blank headers become "Unnamed: <i>" and repeats get a ".<n>" suffix.
func headerNames(row []string) []string {
	names := make([]string, len(row))
	used := make(map[string]bool, len(row))
	repeats := make(map[string]int)
	for i, h := range row {
		if strings.TrimSpace(h) == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			repeats[h]++
			name = h + "." + strconv.Itoa(repeats[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func blankRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func at(rows [][]string, r, c int) string {
	if r >= len(rows) || c >= len(rows[r]) {
		return ""
	}
	return rows[r][c]
}

// cell is one spreadsheet cell as stored (raw) and as displayed (text).
type cell struct {
	raw, text string
}

// value interprets a cell. Stored numbers displayed through a date format
// become dates, booleans display as TRUE/FALSE over a stored 1/0.
func (c cell) value() core.Value {
	if c.raw == "" && c.text == "" {
		return nil
	}
	if (c.text == "TRUE" || c.text == "FALSE") && (c.raw == "1" || c.raw == "0") {
		return c.text == "TRUE"
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(c.raw), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if c.text != c.raw {
			if t, ok := core.ParseDate(c.text); ok {
				return t
			}
		}
		return f
	}
	if t, ok := core.ParseDate(c.text); ok {
		return t
	}
	return c.text
}

// inferColumn types a column from its cells. A column whose non-empty cells
// do not agree on one type is read as text.
func inferColumn(cells []cell) (core.ColumnType, []core.Value) {
	vals := make([]core.Value, len(cells))
	var typ core.ColumnType
	mixed := false
	for i, c := range cells {
		v := c.value()
		vals[i] = v
		if v == nil {
			continue
		}
		t, _ := core.TypeOf(v)
		if typ == "" {
			typ = t
		} else if t != typ {
			mixed = true
		}
	}

	if typ == "" {
		return core.TypeString, vals
	}
	if !mixed {
		return typ, vals
	}
	for i, c := range cells {
		if vals[i] != nil {
			vals[i] = c.text
		}
	}
	return core.TypeString, vals
}

// WriteXLSX writes ds to a new workbook with a single sheet.
func WriteXLSX(path string, ds *core.Dataset, sheet string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet %q: %w", sheet, err)
	}
	if err := writeSheet(f, sheet, ds); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// ReplaceSheet overwrites the contents of one worksheet of an existing
// workbook with ds. Other sheets and the sheet order are kept.
func ReplaceSheet(path string, ds *core.Dataset, sheet config.SheetRef) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	name, err := resolveSheet(f, sheet)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := writeSheet(f, name, ds); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// writeSheet streams ds into sheet, replacing whatever rows it held.
func writeSheet(f *excelize.File, sheet string, ds *core.Dataset) error {
	dateFmt, dateTimeFmt := xlsxDateFormat, xlsxDateTimeFormat
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}
	dateTimeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateTimeFmt})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, row := range ds.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case time.Time:
				style := dateStyle
				if x.Hour() != 0 || x.Minute() != 0 || x.Second() != 0 {
					style = dateTimeStyle
				}
				cells[i] = excelize.Cell{StyleID: style, Value: x}
			default:
				cells[i] = x
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return nil
}
