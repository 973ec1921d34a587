package config

const (
	defaultInitialAUM         = 100_000
	defaultCommissionPerShare = 0.0035
	defaultSlippagePerShare   = 0.001
)

// BaselineProfile is the original strategy: full sizing off the session
// open, no stop loss, no buffer, positions held to the session close.
func BaselineProfile() StrategyProfile {
	return StrategyProfile{
		InitialAUM:          defaultInitialAUM,
		CommissionPerShare:  defaultCommissionPerShare,
		SlippagePerShare:    defaultSlippagePerShare,
		MaxPositionFraction: 1.0,
	}
}

// EnhancedProfile is the risk-managed variant: 95% sizing off the signal
// bar's close, 1.5% stop loss, 0.05% bound buffer, reversal exits with
// same-bar re-entry.
func EnhancedProfile() StrategyProfile {
	return StrategyProfile{
		InitialAUM:           defaultInitialAUM,
		CommissionPerShare:   defaultCommissionPerShare,
		SlippagePerShare:     defaultSlippagePerShare,
		MaxPositionFraction:  0.95,
		StopLossFraction:     0.015,
		BoundsBufferFraction: 0.0005,
		SizeByClose:          true,
		ReversalExits:        true,
	}
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Data.CacheRoot == "" {
		c.Data.CacheRoot = "data"
	}
	if c.Data.Source == "" {
		c.Data.Source = "yahoo"
	}
	if c.Data.Symbol == "" {
		c.Data.Symbol = "^GSPC"
	}
	if c.Data.Interval == "" {
		c.Data.Interval = "30m"
	}
	if c.Data.Range == "" {
		c.Data.Range = "14d"
	}
	if c.Data.RateLimitPerMin <= 0 {
		c.Data.RateLimitPerMin = 60
	}
	if c.Data.MaxConcurrent <= 0 {
		c.Data.MaxConcurrent = 2
	}
	if c.Estimator.LookbackDays <= 0 {
		c.Estimator.LookbackDays = 13
	}
	if c.Estimator.MinBucketObs <= 0 {
		c.Estimator.MinBucketObs = 10
	}
	if c.Estimator.SessionOpen == "" {
		c.Estimator.SessionOpen = "13:30"
	}
	if c.Estimator.SessionClose == "" {
		c.Estimator.SessionClose = "19:30"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9991"
	}
	if c.Profiles == nil {
		c.Profiles = make(map[string]StrategyProfile)
	}
	if _, ok := c.Profiles["baseline"]; !ok {
		c.Profiles["baseline"] = BaselineProfile()
	}
	if _, ok := c.Profiles["enhanced"]; !ok {
		c.Profiles["enhanced"] = EnhancedProfile()
	}
	for name, p := range c.Profiles {
		if p.InitialAUM <= 0 {
			p.InitialAUM = defaultInitialAUM
		}
		if p.MaxPositionFraction <= 0 {
			p.MaxPositionFraction = 1.0
		}
		c.Profiles[name] = p
	}
}
