// pkg/units/units.go
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit identifies a physical unit the controller understands.
type Unit string

const (
	Nanosecond  Unit = "ns"
	Microsecond Unit = "us"
	Millisecond Unit = "ms"
	Second      Unit = "s"

	Hertz     Unit = "Hz"
	Kilohertz Unit = "kHz"
	Megahertz Unit = "MHz"
)

// Dimension groups units that can be converted into each other.
type Dimension int

const (
	DimensionTime Dimension = iota
	DimensionFrequency
)

// scales maps every unit to its factor relative to the dimension's base
// unit (ns for time, Hz for frequency).
var scales = map[Unit]struct {
	dim    Dimension
	factor decimal.Decimal
}{
	Nanosecond:  {DimensionTime, decimal.New(1, 0)},
	Microsecond: {DimensionTime, decimal.New(1, 3)},
	Millisecond: {DimensionTime, decimal.New(1, 6)},
	Second:      {DimensionTime, decimal.New(1, 9)},

	Hertz:     {DimensionFrequency, decimal.New(1, 0)},
	Kilohertz: {DimensionFrequency, decimal.New(1, 3)},
	Megahertz: {DimensionFrequency, decimal.New(1, 6)},
}

// aliases covers the spellings accepted by Parse in addition to the
// canonical unit symbols. Keys are lowercase.
var aliases = map[string]Unit{
	"ns":  Nanosecond,
	"us":  Microsecond,
	"µs":  Microsecond,
	"ms":  Millisecond,
	"s":   Second,
	"sec": Second,
	"hz":  Hertz,
	"khz": Kilohertz,
	"mhz": Megahertz,
}

// Quantity is an explicit magnitude-plus-unit value. There is no implicit
// default unit: a Quantity is only constructed through the typed helpers
// or Parse, so a bare number can never silently change meaning.
type Quantity struct {
	Magnitude decimal.Decimal
	Unit      Unit
}

// New builds a Quantity from a float magnitude and a known unit.
func New(magnitude float64, unit Unit) (Quantity, error) {
	if _, ok := scales[unit]; !ok {
		return Quantity{}, fmt.Errorf("unknown unit %q", unit)
	}
	return Quantity{Magnitude: decimal.NewFromFloat(magnitude), Unit: unit}, nil
}

// Nanoseconds returns a time quantity in ns.
func Nanoseconds(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Nanosecond}
}

// Microseconds returns a time quantity in us.
func Microseconds(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Microsecond}
}

// Milliseconds returns a time quantity in ms.
func Milliseconds(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Millisecond}
}

// Seconds returns a time quantity in s.
func Seconds(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Second}
}

// HertzQ returns a frequency quantity in Hz.
func HertzQ(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Hertz}
}

// MegahertzQ returns a frequency quantity in MHz.
func MegahertzQ(v float64) Quantity {
	return Quantity{Magnitude: decimal.NewFromFloat(v), Unit: Megahertz}
}

// Parse reads a tagged quantity such as "500 us", "1.5ms" or "16 MHz".
// Untagged strings are rejected: the caller must say what unit it means.
func Parse(s string) (Quantity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Quantity{}, fmt.Errorf("empty quantity")
	}

	// Split the trailing unit token off the numeric part.
	split := len(trimmed)
	for split > 0 {
		c := trimmed[split-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		split--
	}
	numPart := strings.TrimSpace(trimmed[:split])
	unitPart := strings.TrimSpace(trimmed[split:])

	if unitPart == "" {
		return Quantity{}, fmt.Errorf("quantity %q has no unit; tag it explicitly", s)
	}
	unit, ok := aliases[strings.ToLower(unitPart)]
	if !ok {
		return Quantity{}, fmt.Errorf("unknown unit %q in quantity %q", unitPart, s)
	}

	mag, err := decimal.NewFromString(numPart)
	if err != nil {
		return Quantity{}, fmt.Errorf("bad magnitude in quantity %q: %w", s, err)
	}

	return Quantity{Magnitude: mag, Unit: unit}, nil
}

// Dimension reports which dimension the quantity belongs to.
func (q Quantity) Dimension() (Dimension, error) {
	entry, ok := scales[q.Unit]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", q.Unit)
	}
	return entry.dim, nil
}

// In converts the quantity to the target unit and returns the magnitude.
// Converting across dimensions (e.g. ms to Hz) is an error.
func (q Quantity) In(target Unit) (float64, error) {
	from, ok := scales[q.Unit]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", q.Unit)
	}
	to, ok := scales[target]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", target)
	}
	if from.dim != to.dim {
		return 0, fmt.Errorf("cannot convert %s to %s", q.Unit, target)
	}

	converted := q.Magnitude.Mul(from.factor).Div(to.factor)
	f, _ := converted.Float64()
	return f, nil
}

func (q Quantity) String() string {
	return fmt.Sprintf("%s %s", q.Magnitude.String(), q.Unit)
}
