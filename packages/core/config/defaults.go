package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Capture:         boolPtr(true),
		CaptureTee:      boolPtr(false),
		Verbosity:       1,
		NoColor:         boolPtr(false),
		Descriptions:    boolPtr(true),
		Reporters:       nil,
		OutputDir:       "",
		Durations:       0,
		MaxCaptureBytes: 0,
		History:         "",
		Notify:          NotifyConfig{On: "failure"},
		Metrics:         MetricsConfig{},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.GetCapture() == defaults.GetCapture() &&
		c.GetCaptureTee() == defaults.GetCaptureTee() &&
		c.Verbosity == defaults.Verbosity &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.GetDescriptions() == defaults.GetDescriptions() &&
		len(c.Reporters) == 0 &&
		c.OutputDir == defaults.OutputDir &&
		c.Durations == defaults.Durations &&
		c.MaxCaptureBytes == defaults.MaxCaptureBytes &&
		c.History == defaults.History &&
		c.Notify == defaults.Notify &&
		c.Metrics == defaults.Metrics
}
