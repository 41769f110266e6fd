// Package qr renders payloads as PNG QR codes, either inline as data URIs or published to an
// object store.
package qr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 320

// Uploader publishes a blob and returns a URL that serves it.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Renderer struct {
	size     int
	uploader Uploader
}

// NewRenderer returns a renderer that uploads through u, or inlines images when u is nil.
func NewRenderer(u Uploader) *Renderer {
	return &Renderer{size: defaultSize, uploader: u}
}

// PNG encodes payload with medium error correction.
func (r *Renderer) PNG(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("qr: empty payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// RenderQR returns a reference to the image: the public URL of qr/<name>.png when an uploader is
// configured, a data URI otherwise.
func (r *Renderer) RenderQR(ctx context.Context, name string, payload string) (string, error) {
	png, err := r.PNG(payload)
	if err != nil {
		return "", err
	}
	if r.uploader == nil {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
	}
	url, err := r.uploader.PutObject(ctx, "qr/"+strings.TrimLeft(name, "/")+".png", png, "image/png")
	if err != nil {
		return "", fmt.Errorf("qr: upload: %w", err)
	}
	return url, nil
}
