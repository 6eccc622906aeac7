package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Oracle     OracleConfig     `yaml:"oracle"`
	Agent      AgentConfig      `yaml:"agent"`
	Context    ContextConfig    `yaml:"context"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Commands   CommandsConfig   `yaml:"commands"`
	Backup     BackupConfig     `yaml:"backup"`
	Logging    LoggingConfig    `yaml:"logging"`
	Events     EventsConfig     `yaml:"events"`

	// Runtime version information
	Version string `yaml:"-"`
}

// OracleConfig selects and tunes the structured-output model endpoint.
type OracleConfig struct {
	// Backend: ollama (default) or gemini
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
	// BaseURL of the OpenAI-compatible/Ollama endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// APIKey is optional for local servers and required for gemini.
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// ContextLength is the token budget the context manager works against.
	ContextLength int           `yaml:"context_length"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	// RequestsPerMinute caps calls to the backend; 0 means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`
}

// AgentConfig bounds the step loops and the tools they drive.
type AgentConfig struct {
	MaxSteps         int  `yaml:"max_steps"`
	Multi            bool `yaml:"multi"`
	ThinkerSteps     int  `yaml:"thinker_steps"`
	ImplementerSteps int  `yaml:"implementer_steps"`
	TesterSteps      int  `yaml:"tester_steps"`
	// SelectFiles lets the oracle pick files to attach when the task names none.
	SelectFiles      bool          `yaml:"select_files"`
	MaxSelectedFiles int           `yaml:"max_selected_files"`
	MaxAttachBytes   int           `yaml:"max_attach_bytes"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	OutputLimit      int           `yaml:"output_limit"`
	UsePTY           bool          `yaml:"use_pty"`
}

// ContextConfig tunes the history manager.
type ContextConfig struct {
	Threshold      float64 `yaml:"threshold"`
	RecentMessages int     `yaml:"recent_messages"`
	KeepToolPairs  int     `yaml:"keep_tool_pairs"`
}

// SupervisorConfig tunes the periodic reviewer.
type SupervisorConfig struct {
	Enabled           bool `yaml:"enabled"`
	Interval          int  `yaml:"interval"`
	ViewMessages      int  `yaml:"view_messages"`
	PreserveFirst     int  `yaml:"preserve_first"`
	PreserveLast      int  `yaml:"preserve_last"`
	PreserveFloor     int  `yaml:"preserve_floor"`
	OverflowRetries   int  `yaml:"overflow_retries"`
	ValidationRetries int  `yaml:"validation_retries"`
	TruncateChars     int  `yaml:"truncate_chars"`
}

// CommandsConfig seeds the command allow-lists.
type CommandsConfig struct {
	AllowedTypes []string `yaml:"allowed_types"`
	AllowedExact []string `yaml:"allowed_exact"`
	// SkipVerification disables the oracle pre-check; the path-escape check still runs.
	SkipVerification bool `yaml:"skip_verification"`
}

// BackupConfig controls pre-write snapshots.
type BackupConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"`
}

// LoggingConfig controls the process log and per-call diagnostics.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Dir         string `yaml:"dir"`
	ToFile      bool   `yaml:"to_file"`
	RecordCalls bool   `yaml:"record_calls"`
	CallsDir    string `yaml:"calls_dir"`
}

// EventsConfig controls event fan-out.
type EventsConfig struct {
	// Listen is the websocket bridge address; empty disables the bridge.
	Listen string `yaml:"listen"`
	Buffer int    `yaml:"buffer"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Backend:       DefaultBackend,
			Model:         DefaultModel,
			BaseURL:       DefaultOllamaURL,
			Temperature:   DefaultTemperature,
			MaxTokens:     DefaultMaxTokens,
			ContextLength: DefaultContextLength,
			Timeout:       DefaultHTTPTimeout,
			MaxRetries:    DefaultMaxRetries,
			RetryDelay:    DefaultRetryDelay,
		},
		Agent: AgentConfig{
			MaxSteps:         DefaultMaxSteps,
			ThinkerSteps:     DefaultThinkerSteps,
			ImplementerSteps: DefaultImplementerSteps,
			TesterSteps:      DefaultTesterSteps,
			SelectFiles:      true,
			MaxSelectedFiles: DefaultMaxSelectedFiles,
			MaxAttachBytes:   DefaultMaxAttachBytes,
			CommandTimeout:   DefaultCommandTimeout,
			OutputLimit:      DefaultCommandOutputSize,
		},
		Context: ContextConfig{
			Threshold:      DefaultSummarizeThreshold,
			RecentMessages: DefaultRecentMessages,
			KeepToolPairs:  DefaultKeepToolPairs,
		},
		Supervisor: SupervisorConfig{
			Enabled:           true,
			Interval:          DefaultSupervisorInterval,
			ViewMessages:      DefaultViewMessages,
			PreserveFirst:     DefaultPreserveFirst,
			PreserveLast:      DefaultPreserveLast,
			PreserveFloor:     DefaultPreserveFloor,
			OverflowRetries:   DefaultOverflowRetries,
			ValidationRetries: DefaultValidationRetries,
			TruncateChars:     DefaultTruncateChars,
		},
		Backup: BackupConfig{
			Dir:  DefaultBackupDir,
			Keep: DefaultBackupKeep,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Dir:         DefaultLogDir,
			ToFile:      true,
			RecordCalls: true,
			CallsDir:    DefaultCallsDir,
		},
		Events: EventsConfig{
			Buffer: DefaultEventBuffer,
		},
	}
}
