package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Decoder renders a reading's base64 image; a nil error means it displayed.
type Decoder interface {
	Decode(ctx context.Context, b64 string) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, b64 string) error

func (f DecoderFunc) Decode(ctx context.Context, b64 string) error { return f(ctx, b64) }

// ImageDecoder fully decodes the image. JPEG is what the cameras send; PNG is
// accepted because the backend takes PNG uploads too.
type ImageDecoder struct {
	// MaxBytes caps the decoded payload. Zero means no limit.
	MaxBytes int
}

func (d ImageDecoder) Decode(ctx context.Context, b64 string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	if d.MaxBytes > 0 && len(raw) > d.MaxBytes {
		return fmt.Errorf("image too large: %d bytes (max %d)", len(raw), d.MaxBytes)
	}

	if _, _, err := image.Decode(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

// DataURI is how the page embeds the snapshot; there is no binary endpoint.
func DataURI(b64 string) string {
	return "data:image/jpeg;base64," + b64
}
