// Separate package is workaround to import cycles.
package umb_config

type Config struct { //nolint:maligned
	DeviceAddress     int    `hcl:"device_address"` // UMB device id on the bus, default 1
	IdleGapMs         int    `hcl:"idle_gap_ms"`
	LogDebug          bool   `hcl:"log_debug"`
	NetAddress        string `hcl:"net_address"` // host:port of serial bridge, overrides serial_device
	ResponseTimeoutMs int    `hcl:"response_timeout_ms"`
	SerialBaud        int    `hcl:"serial_baud"`
	SerialDevice      string `hcl:"serial_device"`
}
