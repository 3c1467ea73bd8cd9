// Package records splits delimited text into rows of fields.
//
// The scanner is a two-mode state machine. It never fails: malformed
// quoting only changes how characters are grouped into fields.
//
// Rules:
//   - a double quote outside a quoted section opens one
//   - inside a quoted section, two double quotes emit one literal quote
//     and a single double quote closes the section
//   - a comma outside quotes ends the current field
//   - "\n", "\r" and "\r\n" outside quotes end the current row; "\r\n"
//     counts as one break
//   - line breaks inside quotes are kept as field content
//   - a final row whose fields are all blank after trimming is dropped
package records

import (
	"strings"
)

type mode int

const (
	unquoted mode = iota
	quoted
)

// scanner holds the in-progress state while walking the input.
type scanner struct {
	rows    [][]string
	row     []string
	field   strings.Builder
	pending bool // something has been consumed since the last row break
}

func (s *scanner) endField() {
	s.row = append(s.row, s.field.String())
	s.field.Reset()
}

func (s *scanner) endRow() {
	s.endField()
	s.rows = append(s.rows, s.row)
	s.row = nil
	s.pending = false
}

// Parse splits text into rows of raw field values. Fields are returned
// untrimmed; callers decide how whitespace is treated.
func Parse(text string) [][]string {
	s := &scanner{}
	m := unquoted
	src := []rune(text)

	for i := 0; i < len(src); i++ {
		ch := src[i]

		if m == quoted {
			if ch == '"' {
				if i+1 < len(src) && src[i+1] == '"' {
					s.field.WriteRune('"')
					i++
					continue
				}
				m = unquoted
				continue
			}
			s.field.WriteRune(ch)
			continue
		}

		switch ch {
		case '"':
			m = quoted
			s.pending = true
		case ',':
			s.endField()
			s.pending = true
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			s.endRow()
		case '\n':
			s.endRow()
		default:
			s.field.WriteRune(ch)
			s.pending = true
		}
	}

	if s.pending || s.field.Len() > 0 || len(s.row) > 0 {
		s.endRow()
	}

	if n := len(s.rows); n > 0 && IsBlank(s.rows[n-1]) {
		s.rows = s.rows[:n-1]
	}
	if s.rows == nil {
		return [][]string{}
	}
	return s.rows
}

// IsBlank reports whether every field in row is empty after trimming.
func IsBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Split returns the first row as the header and the remaining rows.
// An input with no rows yields a nil header.
func Split(rows [][]string) (header []string, body [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], rows[1:]
}
