// Package redaction masks Slack credentials and other secrets before they
// reach a log sink.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// RedactResponseURLs masks the signed path of hooks.slack.com response URLs.
	RedactResponseURLs bool `json:"redact_response_urls"`

	// CustomPatterns allows additional regex patterns to redact.
	CustomPatterns []string `json:"custom_patterns"`

	// Replacement is the string used to replace sensitive data.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		RedactResponseURLs: true,
		Replacement:        "[REDACTED]",
	}
}

// Redactor provides sensitive data redaction capabilities.
type Redactor struct {
	config         Config
	compiledCustom []*regexp.Regexp
	mu             sync.RWMutex
}

var (
	slackToken   = regexp.MustCompile(`xox[abposr]-[A-Za-z0-9-]{10,}`)
	slackAppTok  = regexp.MustCompile(`xapp-[A-Za-z0-9-]{10,}`)
	bearerToken  = regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9_\-\.]{20,})`)
	keyValue     = regexp.MustCompile(`(?i)(token|signing[_-]?secret|secret|password)\s*[=:]\s*['"]?([^'"\s&]{4,})['"]?`)
	jsonSecret   = regexp.MustCompile(`"(?:token|signing_secret|secret|password|api_key)"\s*:\s*"([^"]+)"`)
	responseHook = regexp.MustCompile(`(https://hooks\.slack\.com/(?:actions|commands|services)/)[^\s"']+`)
)

var sensitiveKeys = []string{
	"token", "secret", "password", "passwd", "credential", "api_key", "apikey",
}

// NewRedactor creates a new Redactor with the given configuration.
// Custom patterns that do not compile are ignored.
func NewRedactor(config Config) *Redactor {
	r := &Redactor{config: config}
	for _, pattern := range config.CustomPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			r.compiledCustom = append(r.compiledCustom, re)
		}
	}
	return r
}

// Redact applies all configured redaction rules to the input string.
func (r *Redactor) Redact(input string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.config.Enabled || input == "" {
		return input
	}

	result := slackToken.ReplaceAllString(input, r.config.Replacement)
	result = slackAppTok.ReplaceAllString(result, r.config.Replacement)
	result = replaceGroups(bearerToken, result, r.config.Replacement)
	result = replaceGroups(jsonSecret, result, r.config.Replacement)
	result = replaceLastGroup(keyValue, result, r.config.Replacement)

	if r.config.RedactResponseURLs {
		result = responseHook.ReplaceAllString(result, "${1}"+r.config.Replacement)
	}

	for _, re := range r.compiledCustom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}
	return result
}

// replaceGroups replaces every captured group of each match, keeping the
// surrounding text.
func replaceGroups(re *regexp.Regexp, input, replacement string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		redacted := match
		for i := len(sub) - 1; i >= 1; i-- {
			if sub[i] != "" && sub[i] != replacement {
				redacted = strings.Replace(redacted, sub[i], replacement, 1)
			}
		}
		return redacted
	})
}

// replaceLastGroup replaces only the value group of a key=value match.
func replaceLastGroup(re *regexp.Regexp, input, replacement string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		value := sub[len(sub)-1]
		if value == "" || value == replacement {
			return match
		}
		idx := strings.LastIndex(match, value)
		return match[:idx] + replacement + match[idx+len(value):]
	})
}

// RedactFields redacts sensitive values in a map. Keys that look like
// credentials are replaced wholesale; string values are scrubbed.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	r.mu.RLock()
	enabled := r.config.Enabled
	replacement := r.config.Replacement
	r.mu.RUnlock()

	if !enabled || fields == nil {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(strings.ToLower(k)) {
			result[k] = replacement
			continue
		}
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case map[string]any:
			result[k] = r.RedactFields(val)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(key string) bool {
	for _, sk := range sensitiveKeys {
		if strings.Contains(key, sk) {
			return true
		}
	}
	return false
}

// SetEnabled enables or disables redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

var (
	globalMu       sync.RWMutex
	globalRedactor = NewRedactor(DefaultConfig())
)

// Redact applies redaction using the global redactor.
func Redact(input string) string {
	globalMu.RLock()
	r := globalRedactor
	globalMu.RUnlock()
	return r.Redact(input)
}

// RedactFields redacts fields using the global redactor.
func RedactFields(fields map[string]any) map[string]any {
	globalMu.RLock()
	r := globalRedactor
	globalMu.RUnlock()
	return r.RedactFields(fields)
}

// SetGlobalConfig sets the configuration for the global redactor.
func SetGlobalConfig(config Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRedactor = NewRedactor(config)
}
