package model

import "encoding/base64"

// QRCode is a rendered QR payload.
type QRCode struct {
	Content string
	PNG     []byte
}

// DataURL embeds the PNG for display surfaces that accept data URLs.
func (q QRCode) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(q.PNG)
}
