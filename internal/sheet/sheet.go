// Package sheet reads the downloaded spreadsheet payloads. The source
// usually serves xlsx but is known to serve CSV under a spreadsheet
// content type, so both are handled behind one row-oriented view.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies the detected payload format. Values double as the file
// extension used for raw audit files.
type Format string

const (
	FormatXLSX Format = ".xlsx"
	FormatCSV  Format = ".csv"
)

// xlsxMagic is the zip local-file header every xlsx starts with.
var xlsxMagic = []byte("PK\x03\x04")

// ErrEmpty reports a zero-length payload.
var ErrEmpty = errors.New("empty payload")

// ErrHTML reports an HTML error page served in place of a spreadsheet.
var ErrHTML = errors.New("payload is an HTML page, not a spreadsheet")

// Detect sniffs the payload format. It rejects empty payloads and HTML error
// pages; anything that is not an xlsx archive is treated as CSV.
func Detect(content []byte) (Format, error) {
	if len(content) == 0 {
		return "", ErrEmpty
	}
	if bytes.HasPrefix(content, xlsxMagic) {
		return FormatXLSX, nil
	}
	head := strings.ToLower(string(content[:min(len(content), 1024)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype") {
		return "", ErrHTML
	}
	return FormatCSV, nil
}

// Rows returns the cell grid of the payload: the first sheet for xlsx, all
// records for CSV. Rows may be ragged; callers index defensively.
func Rows(content []byte, format Format) ([][]string, error) {
	switch format {
	case FormatXLSX:
		return xlsxRows(content)
	case FormatCSV:
		return csvRows(content)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func xlsxRows(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
	}
	return rows, nil
}

func csvRows(content []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1 // the source pads some rows unevenly
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
