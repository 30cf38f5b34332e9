package utils

import (
	"regexp"
	"strings"
)

// RemoveRegexp strips the given case-insensitive expression from the value.
// Used to clean up unit names before they are exported as entity names.
func RemoveRegexp(value string, expression string) string {
	if expression == "" {
		return value
	}
	regex := regexp.MustCompile("(?i)" + expression)
	return strings.TrimSpace(regex.ReplaceAllString(value, ""))
}
