package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JHOFER-Cloud/piko-exporter/piko"
	"github.com/JHOFER-Cloud/piko-exporter/piko/pikotest"
)

func newDevice() pikotest.Device {
	return pikotest.Device{
		Username: piko.DefaultUsername,
		Password: piko.DefaultPassword,
		Tokens:   []string{"2336", "33523", "11.71", "338", "236", "3.88", "2336", "336", "x x x", "supply MPP"},
		Serial:   "90342ABC000123",
		Model:    "PIKO 4.2",
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRead_Table(t *testing.T) {
	srv := pikotest.NewServer(newDevice())
	defer srv.Close()

	out, err := run(t, "read", "--host", srv.URL)
	require.NoError(t, err)

	assert.Contains(t, out, "2 strings, 1 phases")
	assert.Regexp(t, `current_power\s+2336`, out)
	assert.Regexp(t, `daily_energy\s+11.71`, out)
	assert.Regexp(t, `string2_current\s+-`, out)
	assert.Regexp(t, `status\s+supply MPP`, out)
	assert.Contains(t, out, piko.ErrSensorNotInstalled.Error())
	assert.NotContains(t, out, "l2_voltage")
}

func TestRead_JSON(t *testing.T) {
	d := newDevice()
	d.Consumption = []string{"0 W", "0 W", "0 W", "0 W", "0 W", "2450 W", "0 W", "0 W", "310 W", "120 W", "98 W"}
	srv := pikotest.NewServer(d)
	defer srv.Close()

	out, err := run(t, "read", "--host", srv.URL, "--json")
	require.NoError(t, err)

	var rows []row
	require.NoError(t, json.Unmarshal([]byte(out), &rows))

	values := make(map[string]string)
	for _, r := range rows {
		values[r.Name] = r.Value
	}
	assert.Equal(t, "336", values["string2_voltage"])
	assert.Equal(t, "2450", values["solar_generator_power"])
	assert.Equal(t, "120", values["consumption_phase_2"])
}

func TestRead_WrongPassword(t *testing.T) {
	srv := pikotest.NewServer(newDevice())
	defer srv.Close()

	_, err := run(t, "read", "--host", srv.URL, "-p", "wrong")
	assert.Error(t, err)
}

// newFailingIndexServer answers 503 on the index page and serves the BA
// page only when consumption is non-nil.
func newFailingIndexServer(consumption []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/index.fhtml":
			w.WriteHeader(http.StatusServiceUnavailable)
		case r.URL.Path == "/BA.fhtml" && consumption != nil:
			_, _ = w.Write([]byte(pikotest.ConsumptionPage(consumption)))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRead_IndexFailsWithoutSensor(t *testing.T) {
	srv := newFailingIndexServer(nil)
	defer srv.Close()

	_, err := run(t, "read", "--host", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRead_IndexFailsWithSensor(t *testing.T) {
	srv := newFailingIndexServer([]string{"0 W", "0 W", "0 W", "0 W", "0 W", "2450 W", "0 W", "0 W", "310 W", "120 W", "98 W"})
	defer srv.Close()

	out, err := run(t, "read", "--host", srv.URL)
	require.NoError(t, err)
	assert.Regexp(t, `layout\s+.*503`, out)
	assert.NotContains(t, out, piko.ErrValueAbsent.Error())
	assert.Regexp(t, `solar_generator_power\s+2450`, out)
}

func TestRead_MissingHost(t *testing.T) {
	t.Setenv("PIKO_HOST", "")
	_, err := run(t, "read")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--host"))
}

func TestInfo(t *testing.T) {
	srv := pikotest.NewServer(newDevice())
	defer srv.Close()

	out, err := run(t, "info", "--host", srv.URL)
	require.NoError(t, err)
	assert.Regexp(t, `serial\s+90342ABC000123`, out)
	assert.Regexp(t, `model\s+PIKO 4.2`, out)
}
