package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/personal-pl/plctl/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format describes the CSV export of one bank.
type Format struct {
	Bank      model.Bank
	Encoding  encoding.Encoding // nil means UTF-8
	Separator rune
	SkipLines int // banner lines above the header row
	Required  []string
}

// Header decodes data and returns the trimmed column names.
func (f Format) Header(data []byte) ([]string, error) {
	text, err := f.decode(data)
	if err != nil {
		return nil, err
	}

	lines := strings.SplitN(text, "\n", f.SkipLines+2)
	if len(lines) <= f.SkipLines {
		return nil, fmt.Errorf("expected %d banner lines before the header", f.SkipLines)
	}
	headerLine := strings.TrimRight(lines[f.SkipLines], "\r")
	if strings.TrimSpace(headerLine) == "" {
		return nil, fmt.Errorf("no columns to parse")
	}

	cr := csv.NewReader(strings.NewReader(headerLine))
	cr.Comma = f.Separator
	cr.LazyQuotes = true
	rec, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make([]string, len(rec))
	for i, c := range rec {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	return cols, nil
}

// Missing returns the required columns absent from data's header.
func (f Format) Missing(data []byte) ([]string, error) {
	cols, err := f.Header(data)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	var missing []string
	for _, req := range f.Required {
		if !have[req] {
			missing = append(missing, req)
		}
	}
	return missing, nil
}

func (f Format) decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if f.Encoding == nil {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file is not valid UTF-8")
		}
		return string(data), nil
	}
	out, err := io.ReadAll(f.Encoding.NewDecoder().Reader(bytes.NewReader(data)))
	if err != nil {
		return "", fmt.Errorf("decoding %s export: %w", f.Bank, err)
	}
	return string(out), nil
}

// Registry holds the known bank formats.
type Registry struct {
	formats map[model.Bank]Format
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{formats: make(map[model.Bank]Format)}
}

// Register adds a format. Panics on a duplicate bank.
func (r *Registry) Register(f Format) {
	if _, ok := r.formats[f.Bank]; ok {
		panic("duplicate format for bank: " + string(f.Bank))
	}
	r.formats[f.Bank] = f
}

// Get returns the format for bank.
func (r *Registry) Get(bank model.Bank) (Format, bool) {
	f, ok := r.formats[bank]
	return f, ok
}

// Detect guesses the bank of a statement, first from the file name, then
// from which format's header matches.
func (r *Registry) Detect(name string, data []byte) (model.Bank, bool) {
	base := strings.ToLower(filepath.Base(name))
	for _, b := range model.Banks {
		if _, ok := r.formats[b]; ok && strings.Contains(base, strings.ToLower(string(b))) {
			return b, true
		}
	}
	// "bourso" is a common short form in export names.
	if _, ok := r.formats[model.BankBoursorama]; ok && strings.Contains(base, "bourso") {
		return model.BankBoursorama, true
	}

	for _, b := range model.Banks {
		f, ok := r.formats[b]
		if !ok || len(f.Required) == 0 {
			continue
		}
		if missing, err := f.Missing(data); err == nil && len(missing) == 0 {
			return b, true
		}
	}
	return "", false
}

// DefaultRegistry returns the formats of every supported bank.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Format{
		Bank:      model.BankBNP,
		Encoding:  charmap.Windows1252,
		Separator: ';',
		SkipLines: 2,
		Required:  []string{"Date operation", "Libelle", "Montant"},
	})
	r.Register(Format{
		Bank:      model.BankBoursorama,
		Encoding:  charmap.Windows1252,
		Separator: ';',
		Required:  []string{"dateOp", "label", "amount"},
	})
	r.Register(Format{
		Bank:      model.BankRevolut,
		Separator: ',',
		Required:  []string{"Completed Date", "Description", "Amount", "Currency"},
	})
	return r
}
