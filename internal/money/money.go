// Package money defines the fixed-point value types used for currency
// amounts and stock quantities. Amounts are stored as scaled integers so
// that totals, ledger sums and reconciliation never accumulate floating
// point drift; formatting to decimal strings happens only at the boundary.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a currency amount with two implied decimal places.
type Cents int64

// Quantity is a stock quantity with three implied decimal places
// (recipe components can consume fractional units).
type Quantity int64

const quantityScale = 1000

// CentsFromFloat converts a display amount (e.g. parsed user input) to
// cents, rounding half away from zero.
func CentsFromFloat(v float64) Cents {
	return Cents(math.Round(v * 100))
}

// PercentOf applies rate (e.g. 0.12 for 12%) to base, rounding half away
// from zero. Rounding happens exactly once per application so repeated
// percentage math stays deterministic.
func PercentOf(base Cents, rate float64) Cents {
	return Cents(math.Round(float64(base) * rate))
}

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float returns the display value. Only for rendering, never for arithmetic.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// QuantityFromUnits converts whole units to a Quantity.
func QuantityFromUnits(units int64) Quantity {
	return Quantity(units * quantityScale)
}

// ParseQuantity parses a decimal quantity string with up to three decimal
// places, e.g. "2", "0.5", "1.250".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	f := int64(0)
	if frac != "" {
		if len(frac) > 3 {
			return 0, fmt.Errorf("quantity %q has more than 3 decimal places", s)
		}
		frac += strings.Repeat("0", 3-len(frac))
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q", s)
		}
	}
	q := Quantity(w*quantityScale + f)
	if neg {
		q = -q
	}
	return q, nil
}

// MulUnits scales the quantity by a whole number of units, e.g. a recipe
// component amount times the ordered item quantity.
func (q Quantity) MulUnits(units int64) Quantity {
	return Quantity(int64(q) * units)
}

// Mul multiplies two quantities, e.g. a recipe component amount times a
// fractional parent amount. Truncates below the third decimal place.
func (q Quantity) Mul(other Quantity) Quantity {
	return Quantity(int64(q) * int64(other) / quantityScale)
}

func (q Quantity) String() string {
	sign := ""
	v := int64(q)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / quantityScale
	frac := v % quantityScale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	return strings.TrimRight(fmt.Sprintf("%s%d.%03d", sign, whole, frac), "0")
}
