package core

// decode.go turns an uploaded payload into named records.
//
// Delimited text does not declare its delimiter. The header line is parsed
// with each probe delimiter in turn and the first one producing more than one
// column wins; when none does, a frequency sniff over the first lines looks
// for a less common separator. Spreadsheets take their columns from the first
// non-empty row of the first sheet.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Kind is the declared source kind of an upload.
type Kind int

const (
	KindDelimited Kind = iota + 1
	KindSpreadsheet
)

func (k Kind) String() string {
	switch k {
	case KindDelimited:
		return "delimited"
	case KindSpreadsheet:
		return "spreadsheet"
	default:
		return "unknown"
	}
}

// ProbeDelimiters are tried, in order, against the header line.
var ProbeDelimiters = []rune{',', ';', '\t'}

// SniffDelimiters are considered by the frequency sniff.
var SniffDelimiters = []rune{'|', ':', '^', '~'}

// SniffSampleLines is how many lines the sniff inspects.
const SniffSampleLines = 20

// sniffAgreement is the share of sample lines that must contain the
// delimiter exactly as often as the header line does.
const sniffAgreement = 0.8

// Table is the decoder output.
type Table struct {
	Headers   []string
	Records   []RawRecord
	Delimiter rune
}

// Decoder converts payloads to tables.
type Decoder struct {
	text *TextDecoder
}

// NewDecoder returns a decoder. fallbackCharset names the charset used for
// text that is not valid UTF-8; empty rejects such text.
func NewDecoder(fallbackCharset string) (*Decoder, error) {
	td, err := NewTextDecoder(fallbackCharset)
	if err != nil {
		return nil, err
	}
	return &Decoder{text: td}, nil
}

// Decode parses data according to kind.
func (d *Decoder) Decode(data []byte, kind Kind) (*Table, error) {
	switch kind {
	case KindDelimited:
		return d.decodeDelimited(data)
	case KindSpreadsheet:
		return decodeSpreadsheet(data)
	default:
		return nil, fmt.Errorf("decode: %w", ErrUnsupportedUpload)
	}
}

func (d *Decoder) decodeDelimited(data []byte) (*Table, error) {
	text, err := d.text.Decode(data)
	if err != nil {
		return nil, err
	}

	lines := sampleLines(text, SniffSampleLines)
	if len(lines) == 0 {
		return nil, &FormatError{Reason: "file is empty"}
	}

	delim, err := DetectDelimiter(lines)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Reason: err.Error()}
		}
		rows = append(rows, row)
	}

	table, err := buildTable(rows, func(_, _ int, cell string) any { return cell })
	if err != nil {
		return nil, err
	}
	table.Delimiter = delim
	return table, nil
}

// DetectDelimiter picks the delimiter for lines, whose first element is the
// header line.
func DetectDelimiter(lines []string) (rune, error) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return 0, &FormatError{Reason: "no header line"}
	}

	for _, c := range ProbeDelimiters {
		if headerColumns(lines[0], c) > 1 {
			return c, nil
		}
	}

	if c, ok := sniffDelimiter(lines); ok {
		return c, nil
	}

	return 0, &FormatError{Reason: fmt.Sprintf(
		"could not determine the column delimiter: header %q splits on none of %s",
		truncate(lines[0], 60), describeRunes(append(append([]rune{}, ProbeDelimiters...), SniffDelimiters...)))}
}

// headerColumns parses one line with delim and counts the columns.
func headerColumns(line string, delim rune) int {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	row, err := r.Read()
	if err != nil {
		return 0
	}
	return len(row)
}

func sniffDelimiter(lines []string) (rune, bool) {
	var (
		best      rune
		bestScore float64
	)
	for _, c := range SniffDelimiters {
		want := countOutsideQuotes(lines[0], c)
		if want == 0 {
			continue
		}
		agree := 0
		for _, l := range lines {
			if countOutsideQuotes(l, c) == want {
				agree++
			}
		}
		score := float64(agree) / float64(len(lines))
		if score >= sniffAgreement && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore > 0
}

func countOutsideQuotes(line string, c rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == c && !quoted:
			n++
		}
	}
	return n
}

// sampleLines returns up to max non-blank lines from the start of text.
func sampleLines(text string, max int) []string {
	var out []string
	for len(text) > 0 && len(out) < max {
		line := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = ""
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// cellFunc converts the cell at data row i, column j.
type cellFunc func(i, j int, cell string) any

// buildTable takes the first non-blank row as header and maps the remaining
// rows onto it. Short rows are padded; cells past the header are dropped.
func buildTable(rows [][]string, cell cellFunc) (*Table, error) {
	start := 0
	for start < len(rows) && isBlankRow(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, &FormatError{Reason: "file is empty"}
	}

	headers, err := normalizeHeaders(rows[start])
	if err != nil {
		return nil, err
	}

	table := &Table{Headers: headers}
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		rec := NewRawRecord()
		for j, h := range headers {
			var v any = ""
			if j < len(row) {
				v = cell(i, j, strings.TrimSpace(row[j]))
			}
			rec.Set(h, v)
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

func normalizeHeaders(row []string) ([]string, error) {
	// Trailing empty header cells are common in spreadsheet exports.
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}

	headers := make([]string, 0, end)
	seen := make(map[string]int, end)
	for j := 0; j < end; j++ {
		h := NormalizeHeader(row[j])
		if h == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("header column %d is empty", j+1)}
		}
		if prev, dup := seen[h]; dup {
			return nil, &FormatError{Reason: fmt.Sprintf("header %q appears in columns %d and %d", h, prev+1, j+1)}
		}
		seen[h] = j
		headers = append(headers, h)
	}
	return headers, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// decodeSpreadsheet reads the first sheet of an xlsx workbook. Cells are
// read raw so that date-formatted cells can be returned as time.Time.
func decodeSpreadsheet(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("not a readable spreadsheet: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Reason: "workbook has no sheets"}
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("read sheet %q: %v", sheet, err)}
	}

	var date1904 bool
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	dates := newDateStyles(f)
	return buildTable(rows, func(i, j int, cell string) any {
		if cell == "" {
			return cell
		}
		axis, err := excelize.CoordinatesToCellName(j+1, i+1)
		if err != nil {
			return cell
		}
		switch typ, _ := f.GetCellType(sheet, axis); typ {
		case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
			return cell
		case excelize.CellTypeBool:
			return cell == "1" || strings.EqualFold(cell, "true")
		}
		serial, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return cell
		}
		if !dates.isDate(sheet, axis) {
			return serial
		}
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return serial
		}
		return t.Truncate(24 * time.Hour)
	})
}

// dateStyles caches which style IDs carry a date number format.
type dateStyles struct {
	f     *excelize.File
	cache map[int]bool
}

func newDateStyles(f *excelize.File) *dateStyles {
	return &dateStyles{f: f, cache: make(map[int]bool)}
}

func (d *dateStyles) isDate(sheet, axis string) bool {
	id, err := d.f.GetCellStyle(sheet, axis)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := d.cache[id]; ok {
		return v
	}
	style, err := d.f.GetStyle(id)
	v := err == nil && style != nil && isDateFormat(style.NumFmt, style.CustomNumFmt)
	d.cache[id] = v
	return v
}

// isDateFormat reports whether a built-in number format ID or a custom
// format code renders a calendar date.
func isDateFormat(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		code := strings.ToLower(stripQuoted(*custom))
		return strings.Contains(code, "y") || (strings.Contains(code, "d") && strings.Contains(code, "m"))
	}
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// stripQuoted drops literal text ("...") and bracketed sections from a format code.
func stripQuoted(code string) string {
	var b strings.Builder
	depth, quoted := 0, false
	for _, r := range code {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func describeRunes(rs []rune) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = strconv.QuoteRune(r)
	}
	return strings.Join(parts, " ")
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
