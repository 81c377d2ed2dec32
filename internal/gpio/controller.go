package gpio

import (
	"context"
	"time"
)

// Controller layers pin-level conveniences over the raw daemon
// client.
type Controller struct {
	client *Client
}

// NewController wraps a daemon client.
func NewController(client *Client) *Controller {
	return &Controller{client: client}
}

// Client exposes the underlying daemon client.
func (c *Controller) Client() *Client { return c.client }

// SetupOutputPin configures a pin for output and drives it to an
// initial value.
func (c *Controller) SetupOutputPin(ctx context.Context, pin, initialValue int) error {
	if err := c.client.Configure(ctx, pin, DirectionOutput); err != nil {
		return err
	}
	return c.client.Set(ctx, pin, initialValue)
}

// SetupInputPin configures a pin for input.
func (c *Controller) SetupInputPin(ctx context.Context, pin int) error {
	return c.client.Configure(ctx, pin, DirectionInput)
}

// SetPinHigh drives an output pin to 1.
func (c *Controller) SetPinHigh(ctx context.Context, pin int) error {
	return c.client.Set(ctx, pin, 1)
}

// SetPinLow drives an output pin to 0.
func (c *Controller) SetPinLow(ctx context.Context, pin int) error {
	return c.client.Set(ctx, pin, 0)
}

// GetPinValue reads a pin.
func (c *Controller) GetPinValue(ctx context.Context, pin int) (int, error) {
	return c.client.Get(ctx, pin)
}

// TogglePin flips an output pin and returns the new value.
func (c *Controller) TogglePin(ctx context.Context, pin int) (int, error) {
	current, err := c.client.Get(ctx, pin)
	if err != nil {
		return 0, err
	}
	next := 1 - current
	if err := c.client.Set(ctx, pin, next); err != nil {
		return 0, err
	}
	return next, nil
}

// BlinkPin pulses an output pin high then low the given number of
// times, holding each state for duration.
func (c *Controller) BlinkPin(ctx context.Context, pin, times int, duration time.Duration) error {
	for i := 0; i < times; i++ {
		if err := c.SetPinHigh(ctx, pin); err != nil {
			return err
		}
		if err := sleepCtx(ctx, duration); err != nil {
			return err
		}
		if err := c.SetPinLow(ctx, pin); err != nil {
			return err
		}
		if err := sleepCtx(ctx, duration); err != nil {
			return err
		}
	}
	return nil
}

// ControlLED turns an LED on or off.
func (c *Controller) ControlLED(ctx context.Context, pin int, on bool) error {
	if on {
		return c.SetPinHigh(ctx, pin)
	}
	return c.SetPinLow(ctx, pin)
}

// ControlRelay switches a relay. Relays wire the same as LEDs.
func (c *Controller) ControlRelay(ctx context.Context, pin int, on bool) error {
	return c.ControlLED(ctx, pin, on)
}

// ReadButton reports whether a button pin reads high.
func (c *Controller) ReadButton(ctx context.Context, pin int) (bool, error) {
	v, err := c.client.Get(ctx, pin)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// AllPins lists every configured pin.
func (c *Controller) AllPins(ctx context.Context) ([]PinStatus, error) {
	return c.client.Status(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
