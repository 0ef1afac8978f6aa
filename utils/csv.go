package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CsvShape identifies one of the supported upload layouts. It is chosen once
// per file from the header line, so row processing never re-sniffs.
type CsvShape int

const (
	ShapeUnknown CsvShape = iota
	// ShapeDirect: "user_id;temps;malus" — rows carry explicit user ids.
	ShapeDirect
	// ShapeNameBased: "Rang,Nom,Temps,Malus,Temps Final" — rows carry
	// display names that must be resolved against the directory.
	ShapeNameBased
	// ShapeTeamDirect: "equ_id;temps;malus;member_count[;points]" — rows are
	// team aggregates with no individual breakdown.
	ShapeTeamDirect
)

func (s CsvShape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeNameBased:
		return "name"
	case ShapeTeamDirect:
		return "team"
	}
	return "unknown"
}

// DecodeUpload turns uploaded CSV bytes into a clean UTF-8 string: strips a
// UTF-8 BOM if present, and falls back to Windows-1252 for files saved by
// spreadsheet tools that never heard of Unicode.
func DecodeUpload(data []byte) string {
	data = stripBOM(data)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// SniffSeparator picks the delimiter from a header line: a header containing
// a comma and the "Nom" token is the comma-delimited name layout, everything
// else is semicolon-delimited.
func SniffSeparator(header string) rune {
	if strings.Contains(header, ",") && containsToken(header, ",", "nom") {
		return ','
	}
	return ';'
}

// ClassifyHeader maps a header line to its CsvShape.
func ClassifyHeader(header string) CsvShape {
	sep := SniffSeparator(header)
	switch {
	case containsToken(header, string(sep), "user_id"):
		return ShapeDirect
	case containsToken(header, string(sep), "equ_id"):
		return ShapeTeamDirect
	case containsToken(header, string(sep), "nom"):
		return ShapeNameBased
	}
	return ShapeUnknown
}

// HeaderIndex locates a column by case-insensitive name, -1 when absent.
func HeaderIndex(fields []string, name string) int {
	for i, f := range fields {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return i
		}
	}
	return -1
}

func containsToken(header, sep, token string) bool {
	for _, f := range strings.Split(header, sep) {
		if strings.EqualFold(strings.TrimSpace(f), token) {
			return true
		}
	}
	return false
}
