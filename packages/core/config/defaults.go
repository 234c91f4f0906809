package config

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       30000,
		CommentMarker: "#",
		Concurrency:   5,
		Output:        "console",
	}
}
