package verifcode

import (
	"fmt"
	"image"

	qrcode "github.com/skip2/go-qrcode"
)

// QRImage renders the verification URL for the payload as a scannable code.
// The issuance pipeline treats a failure here as fatal: a certificate without
// its verification code must not be produced.
func (s *Signer) QRImage(p Payload, sizePx int) (image.Image, error) {
	if sizePx <= 0 {
		sizePx = 256
	}
	code, err := qrcode.New(s.VerificationURL(p), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode verification code: %w", err)
	}
	code.DisableBorder = true
	return code.Image(sizePx), nil
}
