package ledgerclient

import "strings"

var nonceMarkers = []string{
	"nonce",
	"invalid sequence",
	"already used",
	"too low",
	"too high",
}

// IsNonceRejection reports whether a rejected submission failed because of its
// nonce rather than its content.
func IsNonceRejection(result SubmitResult) bool {
	if result.Accepted {
		return false
	}
	if result.Nonce != nil {
		return true
	}
	msg := strings.ToLower(result.Error)
	for _, m := range nonceMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
