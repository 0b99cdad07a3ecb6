package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

var _ adapter.QRRenderer = (*Renderer)(nil)

// Renderer produces PNG QR codes with medium error correction, which keeps
// codes scannable from a phone pointed at a monitor.
type Renderer struct {
	level qrcode.RecoveryLevel
}

func NewRenderer() *Renderer {
	return &Renderer{level: qrcode.Medium}
}

func (r *Renderer) Render(content string, size int) (*model.QRCode, error) {
	if content == "" {
		return nil, domain.ErrInvalidArgument
	}
	png, err := qrcode.Encode(content, r.level, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return &model.QRCode{Content: content, PNG: png}, nil
}
