package security

import (
	"fmt"
	"regexp"
	"strings"
)

// CommandValidator rejects commands that are destructive no matter what
// the oracle or the user says about them.
type CommandValidator struct {
	blockedPatterns   []*regexp.Regexp
	blockedSubstrings []string
}

// NewCommandValidator creates a CommandValidator with the default blocklist.
func NewCommandValidator() *CommandValidator {
	return &CommandValidator{
		blockedSubstrings: []string{
			// Destructive filesystem operations
			"rm -rf /",
			"rm -rf ~",
			"rm -rf $home",
			"rm -fr /",
			"mkfs.",
			"mkfs ",
			// Raw disk writes
			"of=/dev/sd",
			"of=/dev/nvme",
			"of=/dev/hd",
			"of=/dev/vd",
			"> /dev/sd",
			"> /dev/nvme",
			// Reverse shells
			"nc -e",
			"ncat -e",
			"/dev/tcp/",
			"/dev/udp/",
			// Privilege and system changes
			"sudo ",
			"chmod -r 777 /",
			"chown -r root /",
			"/etc/shadow",
			".ssh/id_",
			"insmod ",
			"modprobe ",
		},
		blockedPatterns: []*regexp.Regexp{
			regexp.MustCompile(`:\s*\(\s*\)\s*\{`),                    // fork bomb
			regexp.MustCompile(`rm\s+(-[rRf]+\s+)+\$`),                // rm -rf $VAR
			regexp.MustCompile(`(?i)(wget|curl)\s+[^|]*\|\s*(ba)?sh`), // download piped to shell
			regexp.MustCompile(`base64\s+-d.*\|\s*(ba)?sh`),
			regexp.MustCompile(`\bshutdown\b|\breboot\b|\bhalt\b`),
			regexp.MustCompile(`git\s+push\s+.*--force`),
		},
	}
}

// ValidationResult contains the result of command validation.
type ValidationResult struct {
	Valid   bool
	Reason  string
	Pattern string
}

// Validate checks command against the blocklist.
func (cv *CommandValidator) Validate(command string) ValidationResult {
	if strings.TrimSpace(command) == "" {
		return ValidationResult{Reason: "empty command"}
	}

	normalized := strings.ToLower(command)
	for _, substr := range cv.blockedSubstrings {
		if strings.Contains(normalized, substr) {
			return ValidationResult{
				Reason:  fmt.Sprintf("contains blocked pattern: %s", substr),
				Pattern: substr,
			}
		}
	}
	for _, pattern := range cv.blockedPatterns {
		if pattern.MatchString(command) {
			return ValidationResult{
				Reason:  "matches dangerous pattern",
				Pattern: pattern.String(),
			}
		}
	}
	return ValidationResult{Valid: true, Reason: "command passed validation"}
}

// AddBlockedPattern adds a regex pattern to the blocklist.
func (cv *CommandValidator) AddBlockedPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	cv.blockedPatterns = append(cv.blockedPatterns, re)
	return nil
}
