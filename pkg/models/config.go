package models

import "time"

// ScanConfig is the runtime-editable scan configuration. The scanner receives
// a copy per scan invocation.
type ScanConfig struct {
	Range                   string `json:"range" yaml:"range" mapstructure:"range" validate:"required,max=256" example:"192.168.1.0/24"`
	Concurrency             int    `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=4096" example:"50"`
	TimeoutMs               int    `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms" validate:"min=1,max=60000" example:"500"`
	AutoScanEnabled         bool   `json:"auto_scan_enabled" yaml:"auto_scan_enabled" mapstructure:"auto_scan_enabled"`
	AutoScanIntervalSeconds int    `json:"auto_scan_interval_seconds" yaml:"auto_scan_interval_seconds" mapstructure:"auto_scan_interval_seconds" validate:"min=5,max=3600" example:"60"`
}

// Timeout returns the per-probe budget.
func (c ScanConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Interval returns the auto-scan cadence.
func (c ScanConfig) Interval() time.Duration {
	return time.Duration(c.AutoScanIntervalSeconds) * time.Second
}
