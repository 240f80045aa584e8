package config

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: BackendBadger,
		},
		Log: LogConfig{
			Level: "warn",
			JSON:  false,
		},
	}
}
