package piko

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeFetcher struct {
	measurements   []string
	measurementErr error
	consumption    []string
	consumptionErr error
	calls          int
}

func (f *fakeFetcher) FetchMeasurements(ctx context.Context) ([]string, error) {
	f.calls++
	return f.measurements, f.measurementErr
}

func (f *fakeFetcher) FetchConsumption(ctx context.Context) ([]string, error) {
	f.calls++
	return f.consumption, f.consumptionErr
}

func newObservedClient(f Fetcher) (*Client, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewClient(f, WithLogger(zap.New(core))), logs
}

func TestClient_Refresh(t *testing.T) {
	f := &fakeFetcher{measurements: sampleThreeStrings, consumption: sampleConsumption}
	c, logs := newObservedClient(f)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snap := c.Refresh(context.Background())
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, fixed, snap.Time)
	require.NoError(t, snap.DataErr)
	require.NoError(t, snap.ConsumptionErr)

	power, ok := snap.Data.CurrentPower()
	assert.True(t, ok)
	assert.Equal(t, 112, power)

	phase2, err := snap.Consumption.ConsumptionPhase2()
	assert.NoError(t, err)
	assert.Equal(t, 120.0, phase2)

	assert.Zero(t, logs.Len())
}

func TestClient_Refresh_MeasurementsFail(t *testing.T) {
	f := &fakeFetcher{measurementErr: errors.New("connection refused"), consumption: sampleConsumption}
	c, logs := newObservedClient(f)

	snap := c.Refresh(context.Background())
	assert.Error(t, snap.DataErr)
	assert.Nil(t, snap.Data)

	_, ok := snap.Data.CurrentPower()
	assert.False(t, ok)

	_, err := snap.Consumption.ConsumptionPhase1()
	assert.NoError(t, err, "consumption must still be read")

	assert.Equal(t, 1, logs.FilterMessage("fetching measurements failed").Len())
}

func TestClient_Refresh_ConsumptionFail(t *testing.T) {
	f := &fakeFetcher{measurements: sampleTwoStrings, consumptionErr: errors.New("timeout")}
	c, _ := newObservedClient(f)

	snap := c.Refresh(context.Background())
	assert.NoError(t, snap.DataErr)
	assert.Error(t, snap.ConsumptionErr)

	_, err := snap.Consumption.ConsumptionPhase1()
	assert.ErrorIs(t, err, ErrValueAbsent)

	v, ok := snap.Data.String2Voltage()
	assert.True(t, ok)
	assert.Equal(t, 336, v)
}

func TestClient_Refresh_NoSensor(t *testing.T) {
	for name, f := range map[string]*fakeFetcher{
		"empty page": {measurements: sampleTwoStrings, consumption: []string{}},
		"not found":  {measurements: sampleTwoStrings, consumptionErr: fmt.Errorf("http://x/BA.fhtml: %w", ErrPageNotFound)},
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newObservedClient(f)
			snap := c.Refresh(context.Background())
			assert.NoError(t, snap.ConsumptionErr)
			assert.False(t, snap.Consumption.Installed())

			_, err := snap.Consumption.ConsumptionPhase2()
			assert.ErrorIs(t, err, ErrSensorNotInstalled)
		})
	}
}

func TestClient_Refresh_LogsLayoutProblems(t *testing.T) {
	tokens := append([]string(nil), sampleThreeStrings...)
	tokens[11] = "x x x"
	f := &fakeFetcher{measurements: tokens, consumption: sampleConsumption}
	c, logs := newObservedClient(f)

	c.Refresh(context.Background())
	entries := logs.FilterMessage("field not numeric").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "string3_voltage", entries[0].ContextMap()["field"])

	f.measurements = []string{"1", "2", "3"}
	snap := c.Refresh(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("unrecognized measurement layout").Len())
	_, err := snap.Data.Layout()
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestClient_RefreshBuildsNewSnapshot(t *testing.T) {
	f := &fakeFetcher{measurements: sampleTwoStrings, consumption: sampleConsumption}
	c := NewClient(f)

	first := c.Refresh(context.Background())
	f.measurements = sampleThreeStrings
	second := c.Refresh(context.Background())

	v, _ := first.Data.CurrentPower()
	assert.Equal(t, 2336, v)
	v, _ = second.Data.CurrentPower()
	assert.Equal(t, 112, v)
	assert.Equal(t, 4, f.calls)
}
