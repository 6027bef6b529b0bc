// Package controller implements the Feed Manager (C10): a single-threaded
// loop that drives the Feeder and regulates feed rate against the work
// queue's observed drain rate via single-exponential smoothing (spec.md
// §4.5). Grounded on the teacher's sleepCtx helper (service.go) for a
// context-aware sleep that returns promptly on shutdown.
package controller

import (
	"context"
	"math"
	"time"

	"dex/internal/core/mqueue"
	"dex/internal/platform/logger"
	"dex/internal/services/feeder"
)

// Config holds the Controller's tunables
type Config struct {
	FeedSize        int
	SmoothingConst  float64 // alpha, in (0, 1]
	MaxSleepSeconds float64
}

// Controller drives Feeder against the broker's observed drain rate
type Controller struct {
	Feeder *feeder.Feeder
	Broker *mqueue.Broker
	Cfg    Config

	forecast float64
}

// New builds a Controller
func New(f *feeder.Feeder, broker *mqueue.Broker, cfg Config) *Controller {
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = 100
	}
	if cfg.SmoothingConst <= 0 || cfg.SmoothingConst > 1 {
		cfg.SmoothingConst = 0.3
	}
	if cfg.MaxSleepSeconds <= 0 {
		cfg.MaxSleepSeconds = 30
	}
	return &Controller{Feeder: f, Broker: broker, Cfg: cfg}
}

// Run drives the loop until the queue has drained within the theoretical
// worker wind-down window after stop_feeding is observed (spec.md §4.5's
// termination condition), or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	buffer := 0.2 * float64(c.Cfg.FeedSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		stats, err := c.Broker.Stats(ctx)
		if err != nil {
			logger.Get().Warn().Err(err).Msg("controller: broker stats unavailable, holding forecast")
		}
		messages := float64(stats.Messages)
		demand := stats.AckEgressRate

		c.updateForecast(demand)

		var timeout float64
		if messages <= buffer {
			if !c.Feeder.StopFeeding {
				if _, ferr := c.Feeder.Feed(ctx); ferr != nil {
					logger.Get().Error().Err(ferr).Msg("controller: feed cycle failed")
				}
				messages += float64(c.Cfg.FeedSize)
			} else {
				sleepRemaining := messages / c.forecast
				timeout = math.Floor(sleepRemaining / c.Cfg.MaxSleepSeconds)
				if timeout <= 0 {
					logger.Get().Info().Msg("controller: queue drained within wind-down window, stopping")
					return nil
				}
			}
		}

		sleep := messages
		if messages > buffer {
			sleep = messages - buffer
		}
		sleep /= c.forecast
		sleep = clamp(sleep, 0, c.Cfg.MaxSleepSeconds)

		if err := sleepCtx(ctx, time.Duration(sleep*float64(time.Second))); err != nil {
			return nil
		}
	}
}

// updateForecast applies spec.md §4.5 step 2's single-exponential smoothing
func (c *Controller) updateForecast(demand float64) {
	if c.forecast == 0 {
		c.forecast = math.Max(demand, 1)
		return
	}
	c.forecast += c.Cfg.SmoothingConst * (demand - c.forecast)
	if c.forecast <= 0 {
		c.forecast = 1
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
