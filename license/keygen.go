package license

import (
	"crypto/rand"
	"fmt"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeSegmentLen = 8

// generateCode produces a dash-delimited activation code like
// VDK-7F3K9Q2M-X4B8N1ZC. Uniqueness is enforced by the store's unique
// index, not by the generator; IssueKey retries on collision.
func generateCode(prefix string) (string, error) {
	seg := func() (string, error) {
		buf := make([]byte, codeSegmentLen)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = codeCharset[int(b)%len(codeCharset)]
		}
		return string(buf), nil
	}

	a, err := seg()
	if err != nil {
		return "", err
	}
	b, err := seg()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, a, b), nil
}
