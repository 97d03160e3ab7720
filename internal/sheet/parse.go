// Package sheet reads uploaded spreadsheets into rows and derives a default chart configuration.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/gabriel-vasile/mimetype"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/xuri/excelize/v2"
)

// Format is a supported spreadsheet file format.
type Format string

const (
	FormatXLSX Format = ".xlsx"
	FormatXLS  Format = ".xls"
	FormatCSV  Format = ".csv"
)

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = []string{string(FormatXLSX), string(FormatXLS), string(FormatCSV)}

// container is the mime type every file of a format must descend from.
var container = map[Format]string{
	FormatXLSX: "application/zip",
	FormatXLS:  "application/x-ole-storage",
	FormatCSV:  "text/plain",
}

var ErrNoSheet = errors.New("workbook has no sheets")

// Table is the parsed first sheet: its header order plus the data rows.
type Table struct {
	Headers []string
	Rows    Rows
}

// FormatOf returns the format for a file name, or a validation error if the extension is not allowed.
func FormatOf(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(AllowedExtensions, ext) {
		return "", apperr.Validation("only .xlsx, .xls and .csv files are allowed")
	}
	return Format(ext), nil
}

// Sniff checks that the content matches the container of the declared format.
func Sniff(format Format, content []byte) error {
	want, ok := container[format]
	if !ok {
		return apperr.Validation("unsupported file format")
	}
	for mt := mimetype.Detect(content); mt != nil; mt = mt.Parent() {
		if mt.Is(want) {
			return nil
		}
	}
	return apperr.Validation(fmt.Sprintf("file content does not match %s", format))
}

// Parse reads the first sheet of the file. The first row is the header row.
func Parse(filename string, content []byte) (*Table, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	if err := Sniff(format, content); err != nil {
		return nil, err
	}

	var records [][]string
	switch format {
	case FormatXLSX:
		records, err = readXLSX(content)
	case FormatXLS:
		records, err = readXLS(content)
	case FormatCSV:
		records, err = readCSV(content)
	}
	if err != nil {
		return nil, apperr.Parse("failed to parse spreadsheet", err)
	}
	return buildTable(records), nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readXLS(content []byte) (records [][]string, err error) {
	// the xls reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt xls file: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheet
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, ErrNoSheet
	}

	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		records = append(records, cells)
	}
	return records, nil
}

func readCSV(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// buildTable turns raw records into a Table. Leading blank rows are skipped
// before the header, fully blank data rows are dropped and cells past the
// header width are ignored.
func buildTable(records [][]string) *Table {
	t := &Table{Rows: Rows{}}

	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return t
	}

	t.Headers = headerNames(records[start])
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make(Row, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(rec) {
				row[h] = ParseCell(rec[i])
			} else {
				row[h] = Empty()
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// headerNames trims the header cells and names blank or repeated ones
// __EMPTY, __EMPTY_1, ... and name_1, name_2, ... respectively.
func headerNames(rec []string) []string {
	// trailing blank header cells carry no column
	end := len(rec)
	for end > 0 && strings.TrimSpace(rec[end-1]) == "" {
		end--
	}

	used := make(map[string]bool, end)
	next := make(map[string]int, end)
	names := make([]string, 0, end)
	for _, cell := range rec[:end] {
		base := strings.TrimSpace(cell)
		if base == "" {
			base = "__EMPTY"
		}
		name := base
		for n := next[base] + 1; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
			next[base] = n
		}
		used[name] = true
		names = append(names, name)
	}
	return names
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
