package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/personal-pl/plctl/internal/model"
)

// DefaultMaxBytes is the largest statement accepted for upload.
const DefaultMaxBytes = 10 << 20

// Preflight checks a statement locally before it is uploaded: extension,
// size, emptiness and, when the bank has a known format, the header.
func Preflight(reg *Registry, bank model.Bank, name string, data []byte, maxBytes int64) error {
	fail := func(code, msg string) error {
		return &ValidationFailure{
			Bank:    bank,
			File:    filepath.Base(name),
			Code:    code,
			Message: msg,
			Hint:    Hint(bank, code, msg),
			Local:   true,
		}
	}

	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return fail(CodeInvalidFormat, "only .csv files are accepted")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return fail(CodeFileTooLarge, fmt.Sprintf("file is %d bytes, limit is %d", len(data), maxBytes))
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
		return fail(CodeEmptyFile, "file is empty")
	}

	if reg == nil {
		return nil
	}
	f, ok := reg.Get(bank)
	if !ok {
		return nil
	}
	missing, err := f.Missing(data)
	if err != nil {
		return fail(CodeInvalidFormat, err.Error())
	}
	if len(missing) > 0 {
		return fail(CodeMissingColumns, "Missing required columns: "+strings.Join(missing, ", "))
	}
	return nil
}
