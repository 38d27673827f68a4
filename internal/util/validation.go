package util

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL validates a URL string.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("URL must have a scheme (http or https)")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidateFieldPath validates a dotted record field path such as "user.name"
// or "items[0].id".
func ValidateFieldPath(path string) error {
	if IsEmpty(path) {
		return fmt.Errorf("field path cannot be empty")
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return fmt.Errorf("field path %q cannot start or end with '.'", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("field path %q contains an empty segment", path)
	}
	if strings.Count(path, "[") != strings.Count(path, "]") {
		return fmt.Errorf("field path %q has unbalanced brackets", path)
	}
	return nil
}

// IsEmpty reports whether a string is empty after trimming whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
