package config

import (
	"fmt"

	"noiseband/internal/market"
)

func validate(cfg *Config) error {
	open, err := market.ParseTimeOfDay(cfg.Estimator.SessionOpen)
	if err != nil {
		return fmt.Errorf("estimator.session_open: %w", err)
	}
	close, err := market.ParseTimeOfDay(cfg.Estimator.SessionClose)
	if err != nil {
		return fmt.Errorf("estimator.session_close: %w", err)
	}
	if close <= open {
		return fmt.Errorf("estimator.session_close %s must be after session_open %s", close, open)
	}
	for name, p := range cfg.Profiles {
		if p.MaxPositionFraction <= 0 || p.MaxPositionFraction > 1 {
			return fmt.Errorf("profile %s: max_position_fraction must be in (0, 1]", name)
		}
		if p.StopLossFraction < 0 || p.StopLossFraction >= 1 {
			return fmt.Errorf("profile %s: stop_loss_fraction must be in [0, 1)", name)
		}
		if p.BoundsBufferFraction < 0 {
			return fmt.Errorf("profile %s: bounds_buffer_fraction cannot be negative", name)
		}
		if p.CommissionPerShare < 0 || p.SlippagePerShare < 0 {
			return fmt.Errorf("profile %s: commission/slippage cannot be negative", name)
		}
	}
	return nil
}

// SessionOpenTime returns the parsed canonical session-open time of day.
// Only valid after Load.
func (c *Config) SessionOpenTime() market.TimeOfDay {
	tod, _ := market.ParseTimeOfDay(c.Estimator.SessionOpen)
	return tod
}

// SessionCloseTime returns the parsed canonical session-close time of day.
func (c *Config) SessionCloseTime() market.TimeOfDay {
	tod, _ := market.ParseTimeOfDay(c.Estimator.SessionClose)
	return tod
}
