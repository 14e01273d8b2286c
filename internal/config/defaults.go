package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DataDir:  "~/.toolhost",
		},
		Server: ServerConfig{
			Host:                  "127.0.0.1",
			Port:                  8000,
			CORSOrigins:           []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			RequestTimeoutSeconds: 120,
		},
		Planner: PlannerConfig{
			Enabled:               true,
			Default:               "gemini",
			TimeoutSeconds:        20,
			SummaryTimeoutSeconds: 20,
			Providers: map[string]ProviderConfig{
				"gemini": {
					Enabled: true,
				},
				"ollama": {
					Enabled: false,
					APIBase: "http://localhost:11434",
					Model:   "llama3.1:8b",
				},
			},
		},
		Capabilities: CapabilitiesConfig{
			Filesystem: FilesystemConfig{
				Enabled:       true,
				MaxReadChars:  2000,
				MaxWriteBytes: 2 * 1024 * 1024,
			},
			Browser: BrowserConfig{
				Enabled:        true,
				Headless:       true,
				TimeoutSeconds: 30,
				MaxTextChars:   1000,
			},
			GitHub: GitHubConfig{
				Enabled: true,
			},
		},
		Bridge: BridgeConfig{
			MaxConcurrentBlocking: 8,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
