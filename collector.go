package main

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
)

// fieldMetric binds an index page field to a descriptor and its extra label value
type fieldMetric struct {
	desc  *prometheus.Desc
	label string
}

// Collector implements prometheus.Collector for PIKO inverters
type Collector struct {
	scrapers []*scraper
	logger   *zap.Logger

	// Metrics
	currentPower        *prometheus.Desc
	totalEnergy         *prometheus.Desc
	dailyEnergy         *prometheus.Desc
	stringVoltage       *prometheus.Desc
	stringCurrent       *prometheus.Desc
	phaseVoltage        *prometheus.Desc
	phasePower          *prometheus.Desc
	status              *prometheus.Desc
	layout              *prometheus.Desc
	sensorInstalled     *prometheus.Desc
	solarGeneratorPower *prometheus.Desc
	consumption         *prometheus.Desc
	info                *prometheus.Desc
	scrapeSuccess       *prometheus.Desc

	fields map[piko.Field]fieldMetric
}

// NewCollector creates a new PIKO collector
func NewCollector(inverters []Inverter, logger *zap.Logger) *Collector {
	scrapers := make([]*scraper, 0, len(inverters))
	for _, inv := range inverters {
		scrapers = append(scrapers, newScraper(inv, logger))
	}
	return newCollector(scrapers, logger)
}

func newCollector(scrapers []*scraper, logger *zap.Logger) *Collector {
	c := &Collector{
		scrapers: scrapers,
		logger:   logger,
		currentPower: prometheus.NewDesc(
			"piko_current_power_watts",
			"Current AC output power in watts",
			[]string{"inverter_name"},
			nil,
		),
		totalEnergy: prometheus.NewDesc(
			"piko_total_energy_kwh",
			"Lifetime energy yield in kilowatt-hours",
			[]string{"inverter_name"},
			nil,
		),
		dailyEnergy: prometheus.NewDesc(
			"piko_daily_energy_kwh",
			"Energy yield of the current day in kilowatt-hours",
			[]string{"inverter_name"},
			nil,
		),
		stringVoltage: prometheus.NewDesc(
			"piko_string_voltage_volts",
			"DC voltage of a PV string in volts",
			[]string{"inverter_name", "string"},
			nil,
		),
		stringCurrent: prometheus.NewDesc(
			"piko_string_current_amperes",
			"DC current of a PV string in amperes",
			[]string{"inverter_name", "string"},
			nil,
		),
		phaseVoltage: prometheus.NewDesc(
			"piko_phase_voltage_volts",
			"AC voltage of an output phase in volts",
			[]string{"inverter_name", "phase"},
			nil,
		),
		phasePower: prometheus.NewDesc(
			"piko_phase_power_watts",
			"AC power of an output phase in watts",
			[]string{"inverter_name", "phase"},
			nil,
		),
		status: prometheus.NewDesc(
			"piko_status_info",
			"Operating status as reported by the inverter",
			[]string{"inverter_name", "status"},
			nil,
		),
		layout: prometheus.NewDesc(
			"piko_layout_info",
			"Detected string and phase configuration",
			[]string{"inverter_name", "strings", "phases", "mixed"},
			nil,
		),
		sensorInstalled: prometheus.NewDesc(
			"piko_consumption_sensor_installed",
			"Whether an own-consumption sensor is installed (1=yes, 0=no)",
			[]string{"inverter_name"},
			nil,
		),
		solarGeneratorPower: prometheus.NewDesc(
			"piko_solar_generator_power_watts",
			"Power delivered by the solar generator in watts",
			[]string{"inverter_name"},
			nil,
		),
		consumption: prometheus.NewDesc(
			"piko_consumption_watts",
			"Household consumption per phase in watts",
			[]string{"inverter_name", "phase"},
			nil,
		),
		info: prometheus.NewDesc(
			"piko_info",
			"PIKO inverter information",
			[]string{"inverter_name", "serial", "model", "host"},
			nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			"piko_scrape_success",
			"Whether scraping the inverter web interface was successful",
			[]string{"inverter_name"},
			nil,
		),
	}

	c.fields = map[piko.Field]fieldMetric{
		piko.CurrentPower:   {desc: c.currentPower},
		piko.TotalEnergy:    {desc: c.totalEnergy},
		piko.DailyEnergy:    {desc: c.dailyEnergy},
		piko.String1Voltage: {desc: c.stringVoltage, label: "1"},
		piko.String1Current: {desc: c.stringCurrent, label: "1"},
		piko.String2Voltage: {desc: c.stringVoltage, label: "2"},
		piko.String2Current: {desc: c.stringCurrent, label: "2"},
		piko.String3Voltage: {desc: c.stringVoltage, label: "3"},
		piko.String3Current: {desc: c.stringCurrent, label: "3"},
		piko.L1Voltage:      {desc: c.phaseVoltage, label: "1"},
		piko.L1Power:        {desc: c.phasePower, label: "1"},
		piko.L2Voltage:      {desc: c.phaseVoltage, label: "2"},
		piko.L2Power:        {desc: c.phasePower, label: "2"},
		piko.L3Voltage:      {desc: c.phaseVoltage, label: "3"},
		piko.L3Power:        {desc: c.phasePower, label: "3"},
	}
	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.currentPower
	ch <- c.totalEnergy
	ch <- c.dailyEnergy
	ch <- c.stringVoltage
	ch <- c.stringCurrent
	ch <- c.phaseVoltage
	ch <- c.phasePower
	ch <- c.status
	ch <- c.layout
	ch <- c.sensorInstalled
	ch <- c.solarGeneratorPower
	ch <- c.consumption
	ch <- c.info
	ch <- c.scrapeSuccess
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var wg sync.WaitGroup

	for _, s := range c.scrapers {
		wg.Add(1)
		go func(s *scraper) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
			defer cancel()
			c.collectInverter(ctx, s, ch)
		}(s)
	}

	wg.Wait()
}

func (c *Collector) collectInverter(ctx context.Context, s *scraper, ch chan<- prometheus.Metric) {
	name := s.inverter.Name

	snap, err := s.scrape(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, name)
		if snap != nil {
			c.collectConsumption(snap.Consumption, name, ch)
		}
		return
	}

	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1, name)

	if layout, err := snap.Data.Layout(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.layout, prometheus.GaugeValue, 1,
			name, strconv.Itoa(layout.Strings), strconv.Itoa(layout.Phases), strconv.FormatBool(layout.Mixed))
	}

	// Only fields present in the detected layout with a numeric value are exported
	for _, f := range piko.Fields() {
		m, ok := c.fields[f]
		if !ok {
			continue
		}
		v, ok := snap.Data.Value(f)
		if !ok {
			continue
		}
		labels := []string{name}
		if m.label != "" {
			labels = append(labels, m.label)
		}
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, v, labels...)
	}

	if status, ok := snap.Data.Status(); ok {
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, 1, name, status)
	}

	c.collectConsumption(snap.Consumption, name, ch)

	if info, ok := s.inverterInfo(ctx); ok {
		ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, name, info.Serial, info.Model, s.inverter.Host)
	}
}

func (c *Collector) collectConsumption(cons *piko.Consumption, name string, ch chan<- prometheus.Metric) {
	// nil means the BA page failed this cycle, nothing is known about the sensor
	if cons == nil {
		return
	}

	installed := 0.0
	if cons.Installed() {
		installed = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.sensorInstalled, prometheus.GaugeValue, installed, name)
	if !cons.Installed() {
		return
	}

	if v, err := cons.SolarGeneratorPower(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.solarGeneratorPower, prometheus.GaugeValue, v, name)
	}
	for phase := 1; phase <= 3; phase++ {
		if v, err := cons.Phase(phase); err == nil {
			ch <- prometheus.MustNewConstMetric(c.consumption, prometheus.GaugeValue, v, name, strconv.Itoa(phase))
		}
	}
}
