package parsers

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// BrokerPosition is one row of a brokerage positions export (§4.1.3).
type BrokerPosition struct {
	Symbol       string  `json:"symbol"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	LastPrice    float64 `json:"last_price"`
	CurrentValue float64 `json:"current_value"`
	CostBasis    float64 `json:"cost_basis"`
	GainLoss     float64 `json:"gain_loss"`
}

var placeholderSymbols = map[string]bool{
	"--":     true,
	"symbol": true,
	"":       true,
}

// ParseBrokerPositions skips preamble rows and starts at the row containing
// both "Symbol" and "Quantity" headers, then extracts position rows.
func ParseBrokerPositions(raw string) []BrokerPosition {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil
	}

	headerRow := -1
	var idx map[string]int
	for i, row := range rows {
		candidate := headerIndex(row)
		if _, hasSymbol := candidate["symbol"]; hasSymbol {
			if _, hasQty := candidate["quantity"]; hasQty {
				headerRow = i
				idx = candidate
				break
			}
		}
	}
	if headerRow == -1 {
		return nil
	}

	var out []BrokerPosition
	for _, row := range rows[headerRow+1:] {
		symbol := strings.TrimSpace(cellAt(row, idx, "symbol"))
		if placeholderSymbols[strings.ToLower(symbol)] {
			continue
		}

		out = append(out, BrokerPosition{
			Symbol:       symbol,
			Description:  cellAt(row, idx, "description"),
			Quantity:     parseNum(cellAt(row, idx, "quantity")),
			LastPrice:    parseNum(cellAt(row, idx, "last price")),
			CurrentValue: parseNum(cellAt(row, idx, "current value")),
			CostBasis:    parseNum(cellAt(row, idx, "cost basis")),
			GainLoss:     parseNum(cellAt(row, idx, "gain/loss")),
		})
	}
	return out
}

// ParseBrokerActivity normalizes a brokerage activity export into raw
// transactions. Rows without a date or amount are dropped.
func ParseBrokerActivity(raw string) []RawTransaction {
	rows, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil || len(rows) == 0 {
		return nil
	}

	idx := headerIndex(rows[0])
	dateCol := firstPresent(idx, "date", "settlement date")
	descCol := firstPresent(idx, "description", "action")

	var out []RawTransaction
	for _, row := range rows[1:] {
		dateRaw := cellAt(row, idx, dateCol)
		amountRaw := cellAt(row, idx, "amount")
		if dateRaw == "" || amountRaw == "" {
			continue
		}
		amount, ok := toFloat(cleanAmount(amountRaw))
		if !ok {
			continue
		}

		name := cellAt(row, idx, descCol)
		if name == "" {
			name = "Unknown"
		}

		out = append(out, RawTransaction{
			Date:   parseRowDate(dateRaw),
			Name:   name,
			Amount: amount,
		})
	}
	return out
}

// headerIndex maps lowercase, trimmed header names to column index.
func headerIndex(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, col := range row {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return idx
}

func cellAt(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func firstPresent(idx map[string]int, candidates ...string) string {
	for _, c := range candidates {
		if _, ok := idx[c]; ok {
			return c
		}
	}
	return ""
}

func parseNum(s string) float64 {
	v, _ := strconv.ParseFloat(cleanAmount(s), 64)
	return v
}
