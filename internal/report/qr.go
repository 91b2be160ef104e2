package report

import (
	"encoding/hex"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// SessionDigestQR renders a session digest as a QR code PNG. The digest
// must be the hex string produced by BuildSession; anything else is
// rejected rather than silently repaired.
func SessionDigestQR(digest string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(digest)
	if trimmed == "" {
		return nil, fmt.Errorf("session digest is empty")
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return nil, fmt.Errorf("session digest %q is not a hex string", trimmed)
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(strings.ToUpper(trimmed), qrcode.Medium, size)
}
