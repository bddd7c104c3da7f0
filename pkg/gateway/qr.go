// Copyright 2024-2026 Aiku AI

package gateway

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the edge length in pixels of the rendered QR PNG.
const qrImageSize = 256

// RenderQRDataURI encodes a pairing code into a PNG QR image and returns it
// as a data: URI suitable for direct embedding in an <img> tag.
func RenderQRDataURI(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
