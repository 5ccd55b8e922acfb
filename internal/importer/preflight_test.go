package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personal-pl/plctl/internal/model"
)

func TestPreflight(t *testing.T) {
	reg := DefaultRegistry()
	revolut := readTestdata(t, "revolut_2025-07.csv")

	tests := []struct {
		name     string
		bank     model.Bank
		file     string
		data     []byte
		maxBytes int64
		code     string
	}{
		{"ok", model.BankRevolut, "revolut.csv", revolut, 0, ""},
		{"uppercase extension", model.BankRevolut, "REVOLUT.CSV", revolut, 0, ""},
		{"wrong extension", model.BankRevolut, "revolut.xlsx", revolut, 0, CodeInvalidFormat},
		{"too large", model.BankRevolut, "revolut.csv", revolut, 10, CodeFileTooLarge},
		{"empty", model.BankRevolut, "revolut.csv", []byte("  \n"), 0, CodeEmptyFile},
		{"only BOM", model.BankBoursorama, "b.csv", []byte("\xef\xbb\xbf"), 0, CodeEmptyFile},
		{"missing columns", model.BankRevolut, "revolut.csv", []byte("Completed Date,Description\n"), 0, CodeMissingColumns},
		{"wrong bank export", model.BankBNP, "bnp.csv", revolut, 0, CodeMissingColumns},
		{"bnp without banner", model.BankBNP, "bnp.csv", []byte("Date operation;Libelle;Montant"), 0, CodeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Preflight(reg, tt.bank, tt.file, tt.data, tt.maxBytes)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var vf *ValidationFailure
			require.True(t, errors.As(err, &vf), "got %v", err)
			assert.Equal(t, tt.code, vf.Code)
			assert.True(t, vf.Local)
			assert.NotEmpty(t, vf.Hint)
			assert.Equal(t, tt.bank, vf.Bank)
		})
	}
}

func TestPreflight_NilRegistrySkipsHeader(t *testing.T) {
	err := Preflight(nil, model.BankBNP, "x.csv", []byte("anything"), 0)
	assert.NoError(t, err)
}

func TestPreflight_MissingColumnsMessage(t *testing.T) {
	err := Preflight(DefaultRegistry(), model.BankRevolut, "r.csv", []byte("Completed Date,Amount\n"), 0)
	var vf *ValidationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, "Missing required columns: Description, Currency", vf.Message)
	assert.True(t, strings.HasPrefix(vf.Error(), "Revolut upload r.csv:"))
}
