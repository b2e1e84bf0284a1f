package parsers

import (
	"encoding/csv"
	"math"
	"strconv"
	"strings"
	"time"
)

// CSVProfile describes how to map an institution's CSV export onto
// RawTransaction fields (§4.1.2).
type CSVProfile struct {
	DateColumn        string
	AmountColumn      string
	DescriptionColumn string
	CreditColumn      string
	DebitColumn       string
	InvertAmount      bool
}

// ParseCSV normalizes a generic CSV export according to profile. Rows with
// a non-numeric amount are dropped; rows with an unparseable date are kept
// with today's date substituted.
func ParseCSV(raw string, profile CSVProfile) []RawTransaction {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return nil
	}

	header := records[0]
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}

	var out []RawTransaction
	for _, row := range records[1:] {
		amount, ok := parseRowAmount(row, idx, profile)
		if !ok {
			continue
		}

		name := cell(row, idx, profile.DescriptionColumn)
		if name == "" {
			name = "Unknown"
		}

		date := parseRowDate(cell(row, idx, profile.DateColumn))

		out = append(out, RawTransaction{
			Date:   date,
			Name:   name,
			Amount: amount,
		})
	}
	return out
}

func parseRowAmount(row []string, idx map[string]int, profile CSVProfile) (float64, bool) {
	if profile.CreditColumn != "" || profile.DebitColumn != "" {
		credit := cleanAmount(cell(row, idx, profile.CreditColumn))
		debit := cleanAmount(cell(row, idx, profile.DebitColumn))
		c, cOK := toFloat(credit)
		d, dOK := toFloat(debit)
		if !cOK {
			c = 0
		}
		if !dOK {
			d = 0
		}
		if !cOK && !dOK {
			return 0, false
		}
		return c - d, true
	}

	raw := cleanAmount(cell(row, idx, profile.AmountColumn))
	v, ok := toFloat(raw)
	if !ok {
		return 0, false
	}
	if profile.InvertAmount {
		v = -v
	}
	return v, true
}

func cell(row []string, idx map[string]int, col string) string {
	if col == "" {
		return ""
	}
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// cleanAmount strips every character except digits, '.', and '-'.
func cleanAmount(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

var csvDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

func parseRowDate(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}
