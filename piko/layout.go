package piko

import (
	"errors"
	"fmt"
)

// ErrUnknownLayout is returned when a token count matches no known firmware layout
var ErrUnknownLayout = errors.New("piko: unknown layout")

// Field identifies one named value on the inverter's index page
type Field int

const (
	CurrentPower Field = iota
	TotalEnergy
	DailyEnergy
	String1Voltage
	L1Voltage
	String1Current
	L1Power
	String2Voltage
	L2Voltage
	String2Current
	L2Power
	String3Voltage
	L3Voltage
	String3Current
	L3Power
	Status
)

type fieldKind int

const (
	kindInt fieldKind = iota
	kindFloat
	kindText
)

type fieldInfo struct {
	name string
	kind fieldKind
}

var fieldTable = [...]fieldInfo{
	CurrentPower:   {"current_power", kindInt},
	TotalEnergy:    {"total_energy", kindInt},
	DailyEnergy:    {"daily_energy", kindFloat},
	String1Voltage: {"string1_voltage", kindInt},
	L1Voltage:      {"l1_voltage", kindInt},
	String1Current: {"string1_current", kindFloat},
	L1Power:        {"l1_power", kindInt},
	String2Voltage: {"string2_voltage", kindInt},
	L2Voltage:      {"l2_voltage", kindInt},
	String2Current: {"string2_current", kindFloat},
	L2Power:        {"l2_power", kindInt},
	String3Voltage: {"string3_voltage", kindInt},
	L3Voltage:      {"l3_voltage", kindInt},
	String3Current: {"string3_current", kindFloat},
	L3Power:        {"l3_power", kindInt},
	Status:         {"status", kindText},
}

// Fields returns every known field in index-page order
func Fields() []Field {
	out := make([]Field, len(fieldTable))
	for i := range fieldTable {
		out[i] = Field(i)
	}
	return out
}

// String returns the snake_case name of the field
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldTable) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldTable[f].name
}

// Numeric reports whether the field is parsed as a number
func (f Field) Numeric() bool {
	return f >= 0 && int(f) < len(fieldTable) && fieldTable[f].kind != kindText
}

func (f Field) kind() fieldKind {
	return fieldTable[f].kind
}

// Layout maps fields to token positions for one firmware variant
type Layout struct {
	Strings int
	Phases  int
	// Mixed marks layouts where string and phase counts differ
	Mixed   bool
	indices map[Field]int
}

// Index returns the token position of f, or false if f is not part of this layout
func (l Layout) Index(f Field) (int, bool) {
	i, ok := l.indices[f]
	return i, ok
}

// Has reports whether f is part of this layout
func (l Layout) Has(f Field) bool {
	_, ok := l.indices[f]
	return ok
}

// Size returns the number of tokens the layout expects
func (l Layout) Size() int {
	return len(l.indices)
}

// The device renders one table row per string/phase pair:
// string voltage, phase voltage, string current, phase power.
// Cells for unwired strings or phases are omitted, status comes last.
var baseIndices = map[Field]int{
	CurrentPower:   0,
	TotalEnergy:    1,
	DailyEnergy:    2,
	String1Voltage: 3,
	L1Voltage:      4,
	String1Current: 5,
	L1Power:        6,
}

func extend(extra map[Field]int) map[Field]int {
	m := make(map[Field]int, len(baseIndices)+len(extra))
	for f, i := range baseIndices {
		m[f] = i
	}
	for f, i := range extra {
		m[f] = i
	}
	return m
}

var layouts = map[int]Layout{
	8: {Strings: 1, Phases: 1, indices: extend(map[Field]int{
		Status: 7,
	})},
	10: {Strings: 2, Phases: 1, Mixed: true, indices: extend(map[Field]int{
		String2Voltage: 7,
		String2Current: 8,
		Status:         9,
	})},
	12: {Strings: 2, Phases: 2, indices: extend(map[Field]int{
		String2Voltage: 7,
		L2Voltage:      8,
		String2Current: 9,
		L2Power:        10,
		Status:         11,
	})},
	14: {Strings: 2, Phases: 3, Mixed: true, indices: extend(map[Field]int{
		String2Voltage: 7,
		L2Voltage:      8,
		String2Current: 9,
		L2Power:        10,
		L3Voltage:      11,
		L3Power:        12,
		Status:         13,
	})},
	16: {Strings: 3, Phases: 3, indices: extend(map[Field]int{
		String2Voltage: 7,
		L2Voltage:      8,
		String2Current: 9,
		L2Power:        10,
		String3Voltage: 11,
		L3Voltage:      12,
		String3Current: 13,
		L3Power:        14,
		Status:         15,
	})},
}

// Resolve selects the layout for a sample of count tokens
func Resolve(count int) (Layout, error) {
	l, ok := layouts[count]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d tokens", ErrUnknownLayout, count)
	}
	return l, nil
}
