package infrastructure

import (
	"regexp"
	"strings"
)

// shellSpecialChars have meaning to a POSIX shell and force quoting
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// secretHeaderPattern matches header lines whose values must not reach the logs
var secretHeaderPattern = regexp.MustCompile(`(?im)^(cookie|authorization):[^\r\n]*`)

// ShellQuote quotes s for display in a shell command line.
// Used for logging only; exec.Command takes arguments verbatim.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// FormatCommandLine renders binary and args as a copy-pasteable command line
// with cookie and authorization header values redacted.
func FormatCommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellQuote(binary))
	for _, arg := range args {
		parts = append(parts, ShellQuote(RedactHeaders(arg)))
	}
	return strings.Join(parts, " ")
}

// RedactHeaders replaces the values of Cookie and Authorization header lines
func RedactHeaders(s string) string {
	return secretHeaderPattern.ReplaceAllStringFunc(s, func(line string) string {
		name := line[:strings.IndexByte(line, ':')]
		return name + ": <redacted>"
	})
}
