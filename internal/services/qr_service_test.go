package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestQRService_RenderPNG(t *testing.T) {
	qr := NewQRService(256)

	png, err := qr.RenderPNG("00112233445566778899aabb.deadbeefcafe")
	require.NoError(t, err)

	require.Greater(t, len(png), len(pngSignature))
	assert.Equal(t, pngSignature, png[:len(pngSignature)])
}

func TestQRService_RenderDataURL(t *testing.T) {
	qr := NewQRService(256)
	encoded := "00112233445566778899aabb.deadbeefcafe"

	dataURL, err := qr.RenderDataURL(encoded)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))

	// The inline form and the buffer form must carry the same image
	png, err := qr.RenderPNG(encoded)
	require.NoError(t, err)

	embedded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, png, embedded)
}

func TestQRService_PureFunctionOfInput(t *testing.T) {
	qr := NewQRService(256)
	encoded := "00112233445566778899aabb.deadbeefcafe"

	first, err := qr.RenderPNG(encoded)
	require.NoError(t, err)
	second, err := qr.RenderPNG(encoded)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQRService_EmptyInput(t *testing.T) {
	qr := NewQRService(256)

	_, err := qr.RenderPNG("")
	assert.Error(t, err)

	_, err = qr.RenderDataURL("")
	assert.Error(t, err)
}

func TestQRService_DefaultSize(t *testing.T) {
	qr := NewQRService(0)

	png, err := qr.RenderPNG("some-code")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
