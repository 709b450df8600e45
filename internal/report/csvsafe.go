package report

import "strings"

// Cells starting with these characters get interpreted as formulas by
// spreadsheet software, which turns an attacker-controlled listing
// title into code execution on an analyst's machine.
const formulaLeads = "=+-@|%\t\r\n"

// EscapeCell neutralizes formula injection by prefixing risky cells
// with a single quote. Listing titles come straight from marketplaces,
// so every text cell goes through here before hitting a CSV writer.
func EscapeCell(value string) string {
	if value != "" && strings.ContainsRune(formulaLeads, rune(value[0])) {
		return "'" + value
	}
	return value
}

// EscapeRow escapes every cell in a row.
func EscapeRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCell(cell)
	}
	return escaped
}
