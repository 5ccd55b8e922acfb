package model

import (
	"fmt"
	"strings"
)

// Bank identifies a supported statement source.
type Bank string

const (
	BankBNP        Bank = "BNP"
	BankBoursorama Bank = "Boursorama"
	BankRevolut    Bank = "Revolut"
)

// Banks lists every supported bank in upload-card order.
var Banks = []Bank{BankBoursorama, BankBNP, BankRevolut}

// ParseBank matches a bank name case-insensitively.
func ParseBank(s string) (Bank, error) {
	for _, b := range Banks {
		if strings.EqualFold(strings.TrimSpace(s), string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported bank %q (want one of %s)", s, strings.Join(BankNames(), ", "))
}

// BankNames returns the wire names of all banks.
func BankNames() []string {
	names := make([]string, len(Banks))
	for i, b := range Banks {
		names[i] = string(b)
	}
	return names
}

// DisplayName is the name shown to users, e.g. "BNP Paribas".
func (b Bank) DisplayName() string {
	if b == BankBNP {
		return "BNP Paribas"
	}
	return string(b)
}

// Currency is the statement's native currency.
func (b Bank) Currency() string {
	if b == BankRevolut {
		return "GBP"
	}
	return "EUR"
}

// Valid reports whether b is exactly one of the wire names. Use ParseBank
// to normalise user input first.
func (b Bank) Valid() bool {
	for _, known := range Banks {
		if b == known {
			return true
		}
	}
	return false
}
