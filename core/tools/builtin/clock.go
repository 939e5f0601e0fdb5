package builtin

import (
	"context"
	"time"

	"github.com/koscakluka/ema-realtime/core/tools"
)

type ClockOption func(*clock)

// WithLocation reports times in loc instead of the local time zone.
func WithLocation(loc *time.Location) ClockOption {
	return func(c *clock) {
		if loc != nil {
			c.location = loc
		}
	}
}

func WithNow(now func() time.Time) ClockOption {
	return func(c *clock) {
		c.now = now
	}
}

type clock struct {
	location *time.Location
	now      func() time.Time
}

// Clock is the get_time tool.
func Clock(opts ...ClockOption) tools.Tool {
	c := &clock{location: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return tools.NewTool("get_time", "Get the current time and date.", c.call)
}

func (c *clock) call(context.Context, tools.Args) (string, error) {
	return c.now().In(c.location).Format("15:04 on Monday 2 January 2006 (MST)"), nil
}
