package model

import "strings"

// DefaultMinorUnits applies to currencies missing from the table.
const DefaultMinorUnits = 2

var minorUnits = map[string]int{
	"BHD": 3,
	"BRL": 2,
	"CHF": 2,
	"CLP": 0,
	"EUR": 2,
	"GBP": 2,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"MXN": 2,
	"USD": 2,
}

// MinorUnits returns the number of fractional digits stored for a currency.
func MinorUnits(currency string) int {
	if n, ok := minorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return n
	}
	return DefaultMinorUnits
}
