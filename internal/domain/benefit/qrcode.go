package benefit

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/civicrewards/rewards-api/internal/pkg/errs"
)

const qrCodeBytes = 20

var qrEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewQRCode returns an opaque, unguessable redemption token.
func NewQRCode() (string, error) {
	buf := make([]byte, qrCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.Wrap(err, "generate qr code")
	}
	return "RWD-" + qrEncoding.EncodeToString(buf), nil
}

// NormalizeQRCode trims scanner noise and restores the canonical case.
func NormalizeQRCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
