package secrets

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Redactor removes credentials from strings before they reach logs or
// persisted iteration records.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default sensitive patterns
func NewRedactor() *Redactor {
	defaultPatterns := []string{
		// Database connection strings
		`postgres(?:ql)?://[^:\s]+:[^@\s]+@[^\s"']+`,

		`(?i)(?:api[_-]?key|token|secret|password|pwd)["\s]*[:=]["\s]*[^\s"',}]+`,
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`(?i)basic\s+[a-zA-Z0-9\+/]+=*`,

		// JWT tokens, including the platform session cookie
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,

		// Google API keys
		`AIza[0-9A-Za-z\-_]{35}`,

		// Email addresses used as platform logins
		`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
	}

	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		patterns[i] = regexp.MustCompile(pattern)
	}

	return &Redactor{
		patterns:    patterns,
		replacement: "[REDACTED]",
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	r.patterns = append(r.patterns, compiled)
	return nil
}

// AddLiteral redacts an exact value, such as a loaded API key.
func (r *Redactor) AddLiteral(value string) {
	if value == "" {
		return
	}
	r.patterns = append(r.patterns, regexp.MustCompile(regexp.QuoteMeta(value)))
}

// RedactString redacts sensitive data from a string
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// RedactMap redacts sensitive data from a map[string]interface{}
func (r *Redactor) RedactMap(input map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(input))
	for k, v := range input {
		if isSensitiveKey(k) {
			result[k] = r.replacement
			continue
		}
		result[k] = r.redactValue(v)
	}
	return result
}

// RedactJSON redacts sensitive data from JSON
func (r *Redactor) RedactJSON(input []byte) ([]byte, error) {
	var data interface{}
	if err := json.Unmarshal(input, &data); err != nil {
		// not JSON, treat as text
		return []byte(r.RedactString(string(input))), nil
	}
	return json.Marshal(r.redactValue(data))
}

func (r *Redactor) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.RedactString(v)
	case map[string]interface{}:
		return r.RedactMap(v)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = r.redactValue(val)
		}
		return result
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "pwd", "secret", "token", "api_key", "apikey",
		"credential", "dsn", "authorization", "cookie",
	}

	lowerKey := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitiveKey) {
			return true
		}
	}
	return false
}
