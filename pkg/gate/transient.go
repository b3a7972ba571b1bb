package gate

import "strings"

// transientSignatures are lowercased substrings that mark a failure as worth
// retrying: network flakes, navigation timeouts, and the responses Google
// serves when it suspects automation.
var transientSignatures = []string{
	"timeout",
	"timed out",
	"net::err",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"temporarily unavailable",
	"too many requests",
	"429",
	"rate limit",
	"access denied",
	"forbidden",
	"403",
	"captcha",
	"unusual traffic",
	"challenge",
}

// IsTransient reports whether err looks like a failure that a fresh attempt
// against a fresh browser could survive. Classification is by message
// signature: failures cross a process boundary (the browser driver) and
// arrive as text, not as typed values.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
