package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
)

const (
	mqttConnectRetries = 5
	mqttPublishTimeout = 10 * time.Second
	mqttDisconnectWait = 250
)

// tokenPublisher is the part of mqtt.Client the state publisher needs
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// connectMQTT connects to the broker, retrying with exponential backoff
func connectMQTT(cfg *MQTTConfig, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("connecting to MQTT broker failed", zap.String("broker", cfg.Broker), zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, mqttConnectRetries-1))
	if err != nil {
		return nil, fmt.Errorf("could not connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	logger.Info("connected to MQTT broker", zap.String("broker", cfg.Broker))
	return client, nil
}

// statePublisher periodically publishes one JSON state document per inverter
type statePublisher struct {
	client   tokenPublisher
	prefix   string
	interval time.Duration
	scrapers []*scraper
	logger   *zap.Logger
}

func newStatePublisher(client tokenPublisher, cfg *MQTTConfig, scrapers []*scraper, logger *zap.Logger) *statePublisher {
	return &statePublisher{
		client:   client,
		prefix:   cfg.TopicPrefix,
		interval: cfg.Interval,
		scrapers: scrapers,
		logger:   logger,
	}
}

// run publishes immediately and then on every tick until ctx is done
func (p *statePublisher) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.publishAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *statePublisher) publishAll(ctx context.Context) {
	for _, s := range p.scrapers {
		scrapeCtx, cancel := context.WithTimeout(ctx, scrapeTimeout)
		snap, err := s.scrape(scrapeCtx)
		cancel()

		if err := p.publish(s.inverter, snap, err); err != nil {
			p.logger.Warn("publishing inverter state failed",
				zap.String("inverter", s.inverter.Name),
				zap.Error(err))
		}
	}
}

func (p *statePublisher) publish(inv Inverter, snap *piko.Snapshot, scrapeErr error) error {
	payload, err := json.Marshal(newStateDocument(snap, scrapeErr))
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	topic := stateTopic(p.prefix, inv.Name)
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("published inverter state", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

func stateTopic(prefix, name string) string {
	return prefix + "/" + name + "/state"
}

// stateDocument is the retained MQTT payload
type stateDocument struct {
	Time        time.Time            `json:"time"`
	Available   bool                 `json:"available"`
	Strings     int                  `json:"strings,omitempty"`
	Phases      int                  `json:"phases,omitempty"`
	Status      string               `json:"status,omitempty"`
	Fields      map[string]float64   `json:"fields,omitempty"`
	Consumption *consumptionDocument `json:"consumption,omitempty"`
}

type consumptionDocument struct {
	Installed           bool               `json:"installed"`
	SolarGeneratorPower *float64           `json:"solar_generator_power,omitempty"`
	Phases              map[string]float64 `json:"phases,omitempty"`
}

func newStateDocument(snap *piko.Snapshot, scrapeErr error) stateDocument {
	doc := stateDocument{Time: time.Now().UTC()}
	if snap == nil {
		return doc
	}
	doc.Time = snap.Time.UTC()
	doc.Available = scrapeErr == nil && snap.Data != nil

	if layout, err := snap.Data.Layout(); err == nil {
		doc.Strings = layout.Strings
		doc.Phases = layout.Phases
	}
	for _, f := range piko.Fields() {
		v, ok := snap.Data.Value(f)
		if !ok {
			continue
		}
		if doc.Fields == nil {
			doc.Fields = make(map[string]float64)
		}
		doc.Fields[f.String()] = v
	}
	if status, ok := snap.Data.Status(); ok {
		doc.Status = status
	}

	if snap.Consumption != nil {
		cd := &consumptionDocument{Installed: snap.Consumption.Installed()}
		if v, err := snap.Consumption.SolarGeneratorPower(); err == nil {
			cd.SolarGeneratorPower = &v
		}
		for phase := 1; phase <= 3; phase++ {
			if v, err := snap.Consumption.Phase(phase); err == nil {
				if cd.Phases == nil {
					cd.Phases = make(map[string]float64)
				}
				cd.Phases["l"+strconv.Itoa(phase)] = v
			}
		}
		doc.Consumption = cd
	}
	return doc
}
