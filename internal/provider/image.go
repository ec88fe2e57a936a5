package provider

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageBytes is the largest upload accepted before decoding.
	MaxImageBytes = 15 * 1024 * 1024
	// MinImageBytes rejects obviously truncated uploads.
	MinImageBytes = 100

	// MaxDetectorBytes is the largest payload sent to a detector backend.
	MaxDetectorBytes = 5 * 1024 * 1024
	// MaxDetectorDimension caps the longest side sent to a detector backend.
	MaxDetectorDimension = 1920

	jpegQuality = 90
)

// Frame is an uploaded camera frame ready for a detector.
// Width and Height are those of the original upload, so detector boxes
// expressed as ratios map back to the coordinates the client sees.
type Frame struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// PrepareFrame validates an upload and re-encodes it as JPEG when the
// detector cannot take it as is: unsupported format, too many bytes or
// too many pixels.
func PrepareFrame(data []byte) (*Frame, error) {
	if len(data) < MinImageBytes {
		return nil, fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(data), MinImageBytes)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(data), MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	frame := &Frame{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}

	nativeFormat := format == "jpeg" || format == "png"
	longest := max(cfg.Width, cfg.Height)
	if nativeFormat && len(data) <= MaxDetectorBytes && longest <= MaxDetectorDimension {
		return frame, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if longest > MaxDetectorDimension {
		img = scaleToFit(img, MaxDetectorDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	frame.Data = buf.Bytes()
	frame.Format = "jpeg"

	return frame, nil
}

func scaleToFit(src image.Image, longest int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = h * longest / w
		w = longest
	} else {
		w = w * longest / h
		h = longest
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
