package piko

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Snapshot holds everything read in one poll cycle.
// Data is nil when DataErr is set; Consumption is nil when ConsumptionErr is set.
type Snapshot struct {
	Time           time.Time
	Data           *Data
	DataErr        error
	Consumption    *Consumption
	ConsumptionErr error
}

// Client polls an inverter through a Fetcher
type Client struct {
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger that receives fetch and parse events
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client on top of f
func NewClient(f Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: f,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetcher returns the underlying fetcher
func (c *Client) Fetcher() Fetcher {
	return c.fetcher
}

// Refresh fetches the index page and the BA page once and wraps them.
// A failure on one page does not prevent reading the other.
func (c *Client) Refresh(ctx context.Context) *Snapshot {
	snap := &Snapshot{Time: c.now()}

	tokens, err := c.fetcher.FetchMeasurements(ctx)
	if err != nil {
		c.logger.Warn("fetching measurements failed", zap.Error(err))
		snap.DataErr = err
	} else {
		snap.Data = NewData(tokens)
		c.inspect(snap.Data)
	}

	ba, err := c.fetcher.FetchConsumption(ctx)
	switch {
	case errors.Is(err, ErrPageNotFound):
		c.logger.Debug("consumption page not available, assuming no sensor", zap.Error(err))
		snap.Consumption = NewConsumption(nil)
	case err != nil:
		c.logger.Warn("fetching consumption failed", zap.Error(err))
		snap.ConsumptionErr = err
	default:
		snap.Consumption = NewConsumption(ba)
		if !snap.Consumption.Installed() {
			c.logger.Debug("no consumption sensor installed")
		}
	}

	return snap
}

func (c *Client) inspect(d *Data) {
	layout, err := d.Layout()
	if err != nil {
		c.logger.Warn("unrecognized measurement layout",
			zap.Int("tokens", len(d.tokens)),
			zap.Error(err))
		return
	}
	for _, f := range d.Unparsed() {
		raw, _ := d.Text(f)
		c.logger.Debug("field not numeric",
			zap.Stringer("field", f),
			zap.String("token", raw),
			zap.Int("strings", layout.Strings),
			zap.Int("phases", layout.Phases))
	}
}
