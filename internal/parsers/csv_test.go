package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVBasic(t *testing.T) {
	raw := "Date,Description,Amount\n2024-01-15,Coffee Shop,-4.50\n2024-01-16,Payroll,1500.00\n"
	profile := CSVProfile{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount"}

	txns := ParseCSV(raw, profile)
	require.Len(t, txns, 2)
	assert.Equal(t, -4.50, txns[0].Amount)
	assert.Equal(t, "2024-01-15", txns[0].Date)
	assert.Equal(t, 1500.00, txns[1].Amount)
}

func TestParseCSVCreditDebitColumns(t *testing.T) {
	raw := "Date,Description,Credit,Debit\n2024-01-01,Deposit,100.00,\n2024-01-02,Withdrawal,,40.00\n"
	profile := CSVProfile{DateColumn: "Date", DescriptionColumn: "Description", CreditColumn: "Credit", DebitColumn: "Debit"}

	txns := ParseCSV(raw, profile)
	require.Len(t, txns, 2)
	assert.Equal(t, 100.00, txns[0].Amount)
	assert.Equal(t, -40.00, txns[1].Amount)
}

func TestParseCSVInvertAmount(t *testing.T) {
	raw := "Date,Description,Amount\n2024-01-01,Card Purchase,40.00\n"
	profile := CSVProfile{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount", InvertAmount: true}

	txns := ParseCSV(raw, profile)
	require.Len(t, txns, 1)
	assert.Equal(t, -40.00, txns[0].Amount)
}

func TestParseCSVDropsNonNumericAmount(t *testing.T) {
	raw := "Date,Description,Amount\n2024-01-01,Garbage,N/A\n2024-01-02,Good,10.00\n"
	profile := CSVProfile{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount"}

	txns := ParseCSV(raw, profile)
	require.Len(t, txns, 1)
	assert.Equal(t, "Good", txns[0].Name)
}

func TestParseCSVRetainsRowWithUnparsableDate(t *testing.T) {
	raw := "Date,Description,Amount\nnot-a-date,Mystery,10.00\n"
	profile := CSVProfile{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount"}

	txns := ParseCSV(raw, profile)
	require.Len(t, txns, 1)
	assert.Len(t, txns[0].Date, 10)
}
