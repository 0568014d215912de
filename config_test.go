package main

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestParseInverters(t *testing.T) {
	tests := []struct {
		name          string
		envHosts      string
		envUsers      string
		envPasswords  string
		envNames      string
		wantCount     int
		wantFirstName string
		wantFirstHost string
		wantFirstUser string
		wantFirstPass string
		wantErr       bool
	}{
		{
			name:          "single inverter with name",
			envHosts:      "192.168.1.50",
			envNames:      "roof",
			wantCount:     1,
			wantFirstName: "roof",
			wantFirstHost: "192.168.1.50",
			wantFirstUser: "pvserver",
			wantFirstPass: "pvwr",
		},
		{
			name:          "single inverter without name",
			envHosts:      "192.168.1.50",
			wantCount:     1,
			wantFirstName: "inverter0",
		},
		{
			name:          "custom credentials",
			envHosts:      "192.168.1.50",
			envUsers:      "admin",
			envPasswords:  "secret",
			wantCount:     1,
			wantFirstUser: "admin",
			wantFirstPass: "secret",
		},
		{
			name:          "one password for all inverters",
			envHosts:      "192.168.1.50,192.168.1.51",
			envPasswords:  "shared",
			wantCount:     2,
			wantFirstPass: "shared",
		},
		{
			name:      "multiple inverters with spaces",
			envHosts:  " 192.168.1.50 , 192.168.1.51 ",
			envNames:  " roof , garage ",
			wantCount: 2,
		},
		{
			name:         "mismatched host and password count",
			envHosts:     "192.168.1.50,192.168.1.51,192.168.1.52",
			envPasswords: "a,b",
			wantErr:      true,
		},
		{
			name:          "single blank credential falls back to default",
			envHosts:      "192.168.1.50,192.168.1.51",
			envUsers:      " ",
			envPasswords:  " ",
			wantCount:     2,
			wantFirstUser: "pvserver",
			wantFirstPass: "pvwr",
		},
		{
			name:     "missing hosts",
			envHosts: "",
			wantErr:  true,
		},
		{
			name:     "only separators",
			envHosts: " , ,",
			wantErr:  true,
		},
		{
			name:      "empty values skipped",
			envHosts:  "192.168.1.50,,192.168.1.51",
			envNames:  "roof,,garage",
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PIKO_HOSTS", tt.envHosts)
			t.Setenv("PIKO_USERNAMES", tt.envUsers)
			t.Setenv("PIKO_PASSWORDS", tt.envPasswords)
			t.Setenv("PIKO_NAMES", tt.envNames)

			inverters, err := parseInverters()

			if tt.wantErr {
				if err == nil {
					t.Errorf("parseInverters() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("parseInverters() unexpected error: %v", err)
				return
			}

			if len(inverters) != tt.wantCount {
				t.Errorf("parseInverters() got %d inverters, want %d", len(inverters), tt.wantCount)
				return
			}

			first := inverters[0]
			if tt.wantFirstName != "" && first.Name != tt.wantFirstName {
				t.Errorf("first inverter name = %s, want %s", first.Name, tt.wantFirstName)
			}
			if tt.wantFirstHost != "" && first.Host != tt.wantFirstHost {
				t.Errorf("first inverter host = %s, want %s", first.Host, tt.wantFirstHost)
			}
			if tt.wantFirstUser != "" && first.Username != tt.wantFirstUser {
				t.Errorf("first inverter username = %s, want %s", first.Username, tt.wantFirstUser)
			}
			if tt.wantFirstPass != "" && first.Password != tt.wantFirstPass {
				t.Errorf("first inverter password = %s, want %s", first.Password, tt.wantFirstPass)
			}
		})
	}
}

func TestParseInverters_NamesKeepPosition(t *testing.T) {
	t.Setenv("PIKO_HOSTS", "192.168.1.50,,192.168.1.52")
	t.Setenv("PIKO_NAMES", "")

	inverters, err := parseInverters()
	if err != nil {
		t.Fatalf("parseInverters() unexpected error: %v", err)
	}
	if inverters[1].Name != "inverter2" {
		t.Errorf("second inverter name = %s, want inverter2", inverters[1].Name)
	}
}

func TestGetPort(t *testing.T) {
	tests := []struct {
		name    string
		envPort string
		want    string
	}{
		{
			name:    "default port",
			envPort: "",
			want:    "9090",
		},
		{
			name:    "custom port",
			envPort: "8080",
			want:    "8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EXPORTER_PORT", tt.envPort)

			got := getPort()
			if got != tt.want {
				t.Errorf("getPort() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	level, err := getLogLevel()
	if err != nil || level != zapcore.InfoLevel {
		t.Errorf("getLogLevel() = %v, %v, want info", level, err)
	}

	t.Setenv("LOG_LEVEL", "debug")
	level, err = getLogLevel()
	if err != nil || level != zapcore.DebugLevel {
		t.Errorf("getLogLevel() = %v, %v, want debug", level, err)
	}

	t.Setenv("LOG_LEVEL", "loud")
	if _, err := getLogLevel(); err == nil {
		t.Error("getLogLevel() expected error for invalid level")
	}
}

func TestParseMQTTConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	cfg, err := parseMQTTConfig()
	if err != nil || cfg != nil {
		t.Fatalf("parseMQTTConfig() without broker = %v, %v, want nil, nil", cfg, err)
	}

	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_TOPIC_PREFIX", "")
	t.Setenv("MQTT_INTERVAL", "")
	t.Setenv("MQTT_CLIENT_ID", "")
	cfg, err = parseMQTTConfig()
	if err != nil {
		t.Fatalf("parseMQTTConfig() unexpected error: %v", err)
	}
	if cfg.TopicPrefix != "piko" || cfg.Interval != 30*time.Second || cfg.ClientID != "piko-exporter" {
		t.Errorf("parseMQTTConfig() defaults = %+v", cfg)
	}

	t.Setenv("MQTT_TOPIC_PREFIX", "/home/solar/")
	t.Setenv("MQTT_INTERVAL", "1m")
	cfg, err = parseMQTTConfig()
	if err != nil {
		t.Fatalf("parseMQTTConfig() unexpected error: %v", err)
	}
	if cfg.TopicPrefix != "home/solar" {
		t.Errorf("TopicPrefix = %s, want home/solar", cfg.TopicPrefix)
	}
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %s, want 1m", cfg.Interval)
	}

	for _, bad := range []string{"soon", "-5s", "0s"} {
		t.Setenv("MQTT_INTERVAL", bad)
		if _, err := parseMQTTConfig(); err == nil {
			t.Errorf("parseMQTTConfig() expected error for MQTT_INTERVAL=%s", bad)
		}
	}
}
