package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
)

const (
	defaultPort         = "9090"
	defaultTopicPrefix  = "piko"
	defaultMQTTInterval = 30 * time.Second
	defaultMQTTClientID = "piko-exporter"
)

// MQTTConfig controls the optional state publisher
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	Interval    time.Duration
}

// parseInverters parses inverter configuration from environment variables
func parseInverters() ([]Inverter, error) {
	hosts := os.Getenv("PIKO_HOSTS")
	if hosts == "" {
		return nil, fmt.Errorf("PIKO_HOSTS must be set")
	}

	hostList := strings.Split(hosts, ",")
	names := strings.Split(os.Getenv("PIKO_NAMES"), ",")

	usernames, err := perInverter("PIKO_USERNAMES", len(hostList), piko.DefaultUsername)
	if err != nil {
		return nil, err
	}
	passwords, err := perInverter("PIKO_PASSWORDS", len(hostList), piko.DefaultPassword)
	if err != nil {
		return nil, err
	}

	inverters := make([]Inverter, 0, len(hostList))
	for i := range hostList {
		host := strings.TrimSpace(hostList[i])
		if host == "" {
			continue
		}

		name := "inverter" + strconv.Itoa(i)
		if i < len(names) && strings.TrimSpace(names[i]) != "" {
			name = strings.TrimSpace(names[i])
		}

		inverters = append(inverters, Inverter{
			Name:     name,
			Host:     host,
			Username: usernames[i],
			Password: passwords[i],
		})
	}

	if len(inverters) == 0 {
		return nil, fmt.Errorf("no valid inverters configured")
	}

	return inverters, nil
}

// perInverter expands a comma separated variable to n values. A single value
// applies to every inverter, an unset variable yields def.
func perInverter(key string, n int, def string) ([]string, error) {
	out := make([]string, n)
	raw := os.Getenv(key)
	if raw == "" {
		for i := range out {
			out[i] = def
		}
		return out, nil
	}

	list := strings.Split(raw, ",")
	switch len(list) {
	case 1:
		v := strings.TrimSpace(list[0])
		if v == "" {
			v = def
		}
		for i := range out {
			out[i] = v
		}
	case n:
		for i := range out {
			out[i] = strings.TrimSpace(list[i])
			if out[i] == "" {
				out[i] = def
			}
		}
	default:
		return nil, fmt.Errorf("number of %s entries (%d) must be 1 or match number of hosts (%d)", key, len(list), n)
	}
	return out, nil
}

// getPort returns the configured port or the default
func getPort() string {
	port := os.Getenv("EXPORTER_PORT")
	if port == "" {
		port = defaultPort
	}
	return port
}

// getLogLevel returns the configured log level, info by default
func getLogLevel() (zapcore.Level, error) {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
	}
	return level, nil
}

// parseMQTTConfig returns nil when MQTT_BROKER is unset
func parseMQTTConfig() (*MQTTConfig, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil, nil
	}

	cfg := &MQTTConfig{
		Broker:      broker,
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
		ClientID:    os.Getenv("MQTT_CLIENT_ID"),
		TopicPrefix: strings.Trim(os.Getenv("MQTT_TOPIC_PREFIX"), "/"),
		Interval:    defaultMQTTInterval,
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultMQTTClientID
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}

	if raw := os.Getenv("MQTT_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MQTT_INTERVAL %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("MQTT_INTERVAL must be positive, got %s", d)
		}
		cfg.Interval = d
	}

	return cfg, nil
}
