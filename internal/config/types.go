// Package config loads and validates the application configuration from
// YAML, with strategy variants expressed as named profiles.
package config

// Config is the root configuration tree.
type Config struct {
	App       AppConfig                  `toml:"app"`
	Data      DataConfig                 `toml:"data"`
	Estimator EstimatorConfig            `toml:"estimator"`
	Profiles  map[string]StrategyProfile `toml:"profiles"`
	Server    ServerConfig               `toml:"server"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// DataConfig drives the acquisition collaborators: which source to pull
// bars from and where the local cache lives.
type DataConfig struct {
	CacheRoot       string `toml:"cache_root"`
	Source          string `toml:"source"`
	Symbol          string `toml:"symbol"`
	Interval        string `toml:"interval"`
	Range           string `toml:"range"`
	ProxyURL        string `toml:"proxy_url"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	MaxConcurrent   int    `toml:"max_concurrent"`
}

// EstimatorConfig parameterizes the bound estimator. Session times are
// "HH:MM" in UTC.
type EstimatorConfig struct {
	LookbackDays int    `toml:"lookback_days"`
	MinBucketObs int    `toml:"min_bucket_obs"`
	SessionOpen  string `toml:"session_open"`
	SessionClose string `toml:"session_close"`
	Parallelism  int    `toml:"parallelism"`
}

// StrategyProfile is one named behavior variant of the backtest engine.
// StopLossFraction == 0 disables the stop-loss rule entirely;
// BoundsBufferFraction == 0 evaluates signals against the raw bounds.
// SizeByClose picks the sizing reference price: the session open (false)
// or the signal bar's close (true). ReversalExits enables the
// opposite-breakout exit with same-bar re-entry; when false a position is
// held until the stop or the session close.
type StrategyProfile struct {
	InitialAUM           float64 `toml:"initial_aum"`
	CommissionPerShare   float64 `toml:"commission_per_share"`
	SlippagePerShare     float64 `toml:"slippage_per_share"`
	MaxPositionFraction  float64 `toml:"max_position_fraction"`
	StopLossFraction     float64 `toml:"stop_loss_fraction"`
	BoundsBufferFraction float64 `toml:"bounds_buffer_fraction"`
	SizeByClose          bool    `toml:"size_by_close"`
	ReversalExits        bool    `toml:"reversal_exits"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Profile returns the named profile, falling back to "baseline" when name
// is empty.
func (c *Config) Profile(name string) (StrategyProfile, bool) {
	if name == "" {
		name = "baseline"
	}
	p, ok := c.Profiles[name]
	return p, ok
}
