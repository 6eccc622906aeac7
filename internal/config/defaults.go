package config

import "time"

// Default configuration values.
const (
	// Oracle
	DefaultBackend       = "ollama"
	DefaultModel         = "qwen2.5-coder:14b"
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultTemperature   = 0.2
	DefaultMaxTokens     = 4096
	DefaultContextLength = 32768
	DefaultHTTPTimeout   = 300 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second

	// Step loops
	DefaultMaxSteps          = 150
	DefaultThinkerSteps      = 60
	DefaultImplementerSteps  = 40
	DefaultTesterSteps       = 30
	DefaultMaxAttachBytes    = 64 * 1024
	DefaultMaxSelectedFiles  = 12
	DefaultCommandTimeout    = 20 * time.Second
	DefaultCommandOutputSize = 100 * 1024

	// Context management
	DefaultSummarizeThreshold = 0.65
	DefaultRecentMessages     = 10
	DefaultKeepToolPairs      = 5

	// Supervisor
	DefaultSupervisorInterval = 5
	DefaultViewMessages       = 20
	DefaultPreserveFirst      = 2
	DefaultPreserveLast       = 10
	DefaultPreserveFloor      = 2
	DefaultOverflowRetries    = 5
	DefaultValidationRetries  = 3
	DefaultTruncateChars      = 2000

	// Backups
	DefaultBackupDir  = ".lowvibe/backups"
	DefaultBackupKeep = 10

	// Diagnostics
	DefaultCallsDir    = ".lowvibe/calls"
	DefaultLogDir      = ".lowvibe"
	DefaultEventBuffer = 256
)
