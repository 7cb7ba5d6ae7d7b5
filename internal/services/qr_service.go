package services

import (
	"encoding/base64"
	"fmt"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

// QRService renders an encoded payload string into a scannable code.
// Rendering is a pure function of the input string: both output forms go
// through the same PNG path and carry no ticket state.
type QRService struct {
	size int
}

func NewQRService(size int) *QRService {
	if size <= 0 {
		size = 256
	}
	return &QRService{size: size}
}

// RenderPNG returns the code as raw PNG bytes, suitable for an email
// attachment. High recovery level so glare or print damage still scans.
func (s *QRService) RenderPNG(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("qr: empty encoded payload")
	}

	q, err := qrcode.New(encoded, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}

	q.ForegroundColor = color.Black
	q.BackgroundColor = color.White
	q.DisableBorder = false

	png, err := q.PNG(s.size)
	if err != nil {
		return nil, fmt.Errorf("qr: render png: %w", err)
	}

	return png, nil
}

// RenderDataURL returns the same code as a base64 data URL for inline
// embedding.
func (s *QRService) RenderDataURL(encoded string) (string, error) {
	png, err := s.RenderPNG(encoded)
	if err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
