package piko

import "errors"

var (
	// ErrValueAbsent means no usable value exists for this poll cycle
	ErrValueAbsent = errors.New("piko: value not available")
	// ErrSensorNotInstalled means the inverter has no own-consumption sensor.
	// Unlike ErrValueAbsent this does not change between polls.
	ErrSensorNotInstalled = errors.New("piko: no consumption sensor installed")
)

// Positions on the BA page
const (
	solarGeneratorPowerIndex = 5
	consumptionPhase1Index   = 8
	consumptionPhase2Index   = 9
	consumptionPhase3Index   = 10
)

// Consumption gives access to the own-consumption (BA) page.
// A nil *Consumption means the page could not be fetched this cycle.
type Consumption struct {
	tokens []string
}

// NewConsumption wraps tokens scraped from the BA page. A nil or empty
// slice means no sensor is installed.
func NewConsumption(tokens []string) *Consumption {
	return &Consumption{tokens: append([]string(nil), tokens...)}
}

// Installed reports whether the sample came from an installed sensor
func (c *Consumption) Installed() bool {
	return c != nil && len(c.tokens) > 0
}

func (c *Consumption) at(i int) (float64, error) {
	if c == nil {
		return 0, ErrValueAbsent
	}
	if len(c.tokens) == 0 {
		return 0, ErrSensorNotInstalled
	}
	if i >= len(c.tokens) {
		return 0, ErrValueAbsent
	}
	v, ok := parseFloat(c.tokens[i])
	if !ok {
		return 0, ErrValueAbsent
	}
	return v, nil
}

// SolarGeneratorPower returns the power delivered by the panels in W
func (c *Consumption) SolarGeneratorPower() (float64, error) {
	return c.at(solarGeneratorPowerIndex)
}

// ConsumptionPhase1 returns the household consumption on L1 in W
func (c *Consumption) ConsumptionPhase1() (float64, error) {
	return c.at(consumptionPhase1Index)
}

// ConsumptionPhase2 returns the household consumption on L2 in W
func (c *Consumption) ConsumptionPhase2() (float64, error) {
	return c.at(consumptionPhase2Index)
}

// ConsumptionPhase3 returns the household consumption on L3 in W
func (c *Consumption) ConsumptionPhase3() (float64, error) {
	return c.at(consumptionPhase3Index)
}

// Phase returns the consumption of phase 1, 2 or 3
func (c *Consumption) Phase(n int) (float64, error) {
	switch n {
	case 1:
		return c.ConsumptionPhase1()
	case 2:
		return c.ConsumptionPhase2()
	case 3:
		return c.ConsumptionPhase3()
	}
	return 0, ErrValueAbsent
}
