package qr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) PutObject(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.body, f.contentType = key, body, contentType
	return "https://cdn.example.com/" + key, nil
}

func TestRenderInline(t *testing.T) {
	r := NewRenderer(nil)
	ref, err := r.RenderQR(context.Background(), "sessions/abc", "https://dine.example.com/session/abc")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, pngMagic))
}

func TestRenderUpload(t *testing.T) {
	up := &fakeUploader{}
	r := NewRenderer(up)

	ref, err := r.RenderQR(context.Background(), "payments/12", "000201010212")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/qr/payments/12.png", ref)
	assert.Equal(t, "qr/payments/12.png", up.key)
	assert.Equal(t, "image/png", up.contentType)
	assert.True(t, bytes.HasPrefix(up.body, pngMagic))
}

func TestRenderErrors(t *testing.T) {
	_, err := NewRenderer(nil).RenderQR(context.Background(), "x", "   ")
	assert.Error(t, err)

	_, err = NewRenderer(&fakeUploader{err: errors.New("bucket gone")}).RenderQR(context.Background(), "x", "payload")
	assert.ErrorContains(t, err, "bucket gone")
}
