package whatsapp

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrPrefix = "data:image/png;base64,"

// RenderQR turns a raw pairing code into a PNG data URL.
func RenderQR(code string) (string, error) {
	if code == "" {
		return "", ErrNoQRCode
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	return qrPrefix + base64.StdEncoding.EncodeToString(png), nil
}
