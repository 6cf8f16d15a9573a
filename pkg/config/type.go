package config

type ListenerConfig struct {
	BridgeHost string `toml:"bridge_host"`
	FeedPath   string `toml:"feed_path"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

type BridgeConfig struct {
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`
	// jacobsa or tarm
	SerialDriver  string `toml:"serial_driver"`
	ReadTimeoutMs uint   `toml:"read_timeout_ms"`
	// 0 disables the watchdog
	WatchdogTimeoutMs uint `toml:"watchdog_timeout_ms"`

	// Destination components, joined into a NATS subject.
	Role       string `toml:"role"`
	InstanceId string `toml:"instance_id"`
	PlugName   string `toml:"plug_name"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Empty disables the NATS sink
	NatsURL       string `toml:"nats_url"`
	PayloadFormat string `toml:"payload_format"`

	// Port 0 disables the websocket feed and metrics endpoint
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	JournalEnabled bool   `toml:"journal_enabled"`
	JournalPath    string `toml:"journal_path"`
}
