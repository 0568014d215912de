package piko

import (
	"math"
	"strconv"
	"strings"
)

// Data gives typed access to one sample of the index page.
// A nil *Data reports every field as absent.
type Data struct {
	tokens []string
	layout Layout
	err    error
}

// NewData wraps tokens scraped from the index page. The slice is copied.
func NewData(tokens []string) *Data {
	d := &Data{tokens: append([]string(nil), tokens...)}
	d.layout, d.err = Resolve(len(d.tokens))
	return d
}

// Layout returns the resolved layout, or ErrUnknownLayout
func (d *Data) Layout() (Layout, error) {
	if d == nil {
		return Layout{}, ErrValueAbsent
	}
	return d.layout, d.err
}

// Tokens returns a copy of the raw sample
func (d *Data) Tokens() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.tokens...)
}

func (d *Data) token(f Field) (string, bool) {
	if d == nil || d.err != nil {
		return "", false
	}
	i, ok := d.layout.Index(f)
	if !ok || i < 0 || i >= len(d.tokens) {
		return "", false
	}
	return d.tokens[i], true
}

// Int returns f parsed as an integer
func (d *Data) Int(f Field) (int, bool) {
	raw, ok := d.token(f)
	if !ok {
		return 0, false
	}
	return parseInt(raw)
}

// Float returns f parsed as a decimal number
func (d *Data) Float(f Field) (float64, bool) {
	raw, ok := d.token(f)
	if !ok {
		return 0, false
	}
	return parseFloat(raw)
}

// Text returns the raw token for f without conversion
func (d *Data) Text(f Field) (string, bool) {
	return d.token(f)
}

// Value returns a numeric field as float64 using the field's declared kind
func (d *Data) Value(f Field) (float64, bool) {
	if !f.Numeric() {
		return 0, false
	}
	if f.kind() == kindInt {
		v, ok := d.Int(f)
		return float64(v), ok
	}
	return d.Float(f)
}

// Unparsed lists numeric fields that are present in the layout but whose
// token is not a number, e.g. the placeholder shown for a disconnected string.
func (d *Data) Unparsed() []Field {
	var out []Field
	for _, f := range Fields() {
		if !f.Numeric() {
			continue
		}
		if _, present := d.token(f); !present {
			continue
		}
		if _, ok := d.Value(f); !ok {
			out = append(out, f)
		}
	}
	return out
}

// CurrentPower returns the AC output power in W
func (d *Data) CurrentPower() (int, bool) { return d.Int(CurrentPower) }

// TotalEnergy returns the lifetime yield in kWh
func (d *Data) TotalEnergy() (int, bool) { return d.Int(TotalEnergy) }

// DailyEnergy returns today's yield in kWh
func (d *Data) DailyEnergy() (float64, bool) { return d.Float(DailyEnergy) }

// String1Voltage returns the DC voltage of string 1 in V
func (d *Data) String1Voltage() (int, bool) { return d.Int(String1Voltage) }

// String1Current returns the DC current of string 1 in A
func (d *Data) String1Current() (float64, bool) { return d.Float(String1Current) }

// String2Voltage returns the DC voltage of string 2 in V
func (d *Data) String2Voltage() (int, bool) { return d.Int(String2Voltage) }

// String2Current returns the DC current of string 2 in A
func (d *Data) String2Current() (float64, bool) { return d.Float(String2Current) }

// String3Voltage returns the DC voltage of string 3 in V
func (d *Data) String3Voltage() (int, bool) { return d.Int(String3Voltage) }

// String3Current returns the DC current of string 3 in A
func (d *Data) String3Current() (float64, bool) { return d.Float(String3Current) }

// L1Voltage returns the AC voltage of phase 1 in V
func (d *Data) L1Voltage() (int, bool) { return d.Int(L1Voltage) }

// L1Power returns the AC power of phase 1 in W
func (d *Data) L1Power() (int, bool) { return d.Int(L1Power) }

// L2Voltage returns the AC voltage of phase 2 in V
func (d *Data) L2Voltage() (int, bool) { return d.Int(L2Voltage) }

// L2Power returns the AC power of phase 2 in W
func (d *Data) L2Power() (int, bool) { return d.Int(L2Power) }

// L3Voltage returns the AC voltage of phase 3 in V
func (d *Data) L3Voltage() (int, bool) { return d.Int(L3Voltage) }

// L3Power returns the AC power of phase 3 in W
func (d *Data) L3Power() (int, bool) { return d.Int(L3Power) }

// Status returns the operating status text as shown by the device, e.g. "Einspeisen MPP"
func (d *Data) Status() (string, bool) { return d.Text(Status) }

func parseInt(raw string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
