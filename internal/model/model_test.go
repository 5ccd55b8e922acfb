package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBank(t *testing.T) {
	tests := []struct {
		input string
		want  Bank
	}{
		{"BNP", BankBNP},
		{"bnp", BankBNP},
		{"boursorama", BankBoursorama},
		{" Revolut ", BankRevolut},
	}
	for _, tt := range tests {
		got, err := ParseBank(tt.input)
		require.NoError(t, err, "ParseBank(%q)", tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseBank("Chase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BNP")
}

func TestBankAttributes(t *testing.T) {
	assert.Equal(t, "BNP Paribas", BankBNP.DisplayName())
	assert.Equal(t, "Revolut", BankRevolut.DisplayName())
	assert.Equal(t, "GBP", BankRevolut.Currency())
	assert.Equal(t, "EUR", BankBoursorama.Currency())
	assert.True(t, BankBNP.Valid())
	assert.False(t, Bank("HSBC").Valid())
	assert.False(t, Bank("bnp").Valid())
	assert.False(t, Bank(" Revolut").Valid())
}

func TestPLSummaryResponse_Decode(t *testing.T) {
	body := `{
		"summary": {"month": "2025-07-01", "income": 5926.24, "expense": -229.38, "net": 5696.86, "delta_mom": 120.5, "savings_rate": 96.13},
		"rows": [
			{"category": "Food", "net": -200.10, "subs": [{"name": "Groceries", "net": -150.10}, {"name": "", "net": -50}]},
			{"category": "Salary", "net": 5926.24, "subs": []}
		],
		"filters": {"month": "2025-07-01", "accounts": ["BNP"]}
	}`

	var resp PLSummaryResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.Equal(t, "2025-07", resp.Summary.Month.String())
	assert.Equal(t, "5926.24", resp.Summary.Income.StringFixed(2))
	assert.Equal(t, "-229.38", resp.Summary.Expense.StringFixed(2))
	require.NotNil(t, resp.Summary.Net)
	assert.Equal(t, "5696.86", resp.Summary.Net.StringFixed(2))
	require.NotNil(t, resp.Summary.SavingsRate)
	require.Len(t, resp.Rows, 2)
	assert.Len(t, resp.Rows[0].Subs, 2)
	assert.Equal(t, "", resp.Rows[0].Subs[1].Name)
	assert.Equal(t, []string{"BNP"}, resp.Filters.Accounts)

	row, ok := resp.Row("Salary")
	assert.True(t, ok)
	assert.Empty(t, row.Subs)
	_, ok = resp.Row("Missing")
	assert.False(t, ok)
}

func TestPLSummary_OptionalFields(t *testing.T) {
	var s PLSummary
	require.NoError(t, json.Unmarshal([]byte(`{"month":"2025-07","income":100,"expense":40,"delta_mom":0}`), &s))
	assert.Nil(t, s.Net)
	assert.Nil(t, s.SavingsRate)
}

func TestDate_JSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-07-31"`), &d))
	assert.Equal(t, "2025-07-31", d.String())

	data, err := json.Marshal(NewDate(2025, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02"`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`"07/31/2025"`), &d))
}

func TestTimestamp_JSON(t *testing.T) {
	tests := []string{
		`"2025-07-03T10:15:00Z"`,
		`"2025-07-03T10:15:00.123456"`,
		`"2025-07-03 10:15:00"`,
		`"2025-07-03"`,
	}
	for _, input := range tests {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(input), &ts), "input %s", input)
		assert.Equal(t, 2025, ts.Year())
		assert.Equal(t, 3, ts.Day())
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
