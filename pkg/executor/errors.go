package executor

import "strings"

// retryableSignatures mark failures caused by a bad program: another
// codegen pass has a real chance of fixing them.
var retryableSignatures = []string{
	"attributeerror",
	"nameerror",
	"syntaxerror",
	"typeerror",
	"keyerror",
	"has no attribute",
	"is not defined",
	"unknown step",
	"unknown operation",
	"no ops to run",
}

// nonRetryableSignatures mark environmental failures no regenerated
// program can work around.
var nonRetryableSignatures = []string{
	"permission denied",
	"not authorized",
	"authentication failed",
	"invalid credentials",
	"network error",
	"connection timeout",
	"service unavailable",
	"rate limit exceeded",
	"quota exceeded",
}

// Retryable classifies an execution error. Non-retryable signatures win;
// unknown errors default to retryable because a regeneration attempt is
// cheap and the alternative is surfacing a raw failure.
func Retryable(errText string) bool {
	lower := strings.ToLower(errText)
	for _, sig := range nonRetryableSignatures {
		if strings.Contains(lower, sig) {
			return false
		}
	}
	for _, sig := range retryableSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return true
}
