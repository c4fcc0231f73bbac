// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging decodes uploaded images and renders resized variants.
// It works on byte slices; storing the results is the caller's concern.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/verso-cms/verso/internal/model"
)

// Image is a decoded upload with its detected format.
type Image struct {
	img    image.Image
	format string
}

// Result is one encoded rendition.
type Result struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// Decode parses image data and detects its format from the magic bytes.
func Decode(data []byte) (*Image, error) {
	format := detectFormat(data)
	if format == "" {
		return nil, fmt.Errorf("unsupported image format")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return &Image{img: img, format: format}, nil
}

// Bounds returns the decoded image's dimensions.
func (i *Image) Bounds() (width, height int) {
	b := i.img.Bounds()
	return b.Dx(), b.Dy()
}

// MimeType returns the detected MIME type.
func (i *Image) MimeType() string {
	return formatToMimeType(i.format)
}

// Variant renders one resized rendition. Crop variants fill the exact
// target box from the center; fit variants shrink to the bounds keeping
// aspect ratio and never upscale.
func (i *Image) Variant(cfg model.ImageVariantConfig) (*Result, error) {
	var out image.Image
	if cfg.Crop {
		out = imaging.Fill(i.img, cfg.Width, cfg.Height, imaging.Center, imaging.Lanczos)
	} else {
		w, h := i.Bounds()
		if w <= cfg.Width && h <= cfg.Height {
			out = imaging.Clone(i.img)
		} else {
			out = imaging.Fit(i.img, cfg.Width, cfg.Height, imaging.Lanczos)
		}
	}

	data, err := encode(out, i.format, cfg.Quality)
	if err != nil {
		return nil, err
	}
	b := out.Bounds()
	return &Result{
		Data:     data,
		Width:    b.Dx(),
		Height:   b.Dy(),
		MimeType: formatToMimeType(i.format),
	}, nil
}

func detectFormat(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	default:
		return ""
	}
}

// encode writes the image in its source format. WebP has no pure-Go
// encoder, so WebP uploads get JPEG variants.
func encode(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s variant: %w", format, err)
	}
	return buf.Bytes(), nil
}

func formatToMimeType(format string) string {
	switch format {
	case "png":
		return model.MimeTypePNG
	case "gif":
		return model.MimeTypeGIF
	case "webp":
		return model.MimeTypeWebP
	default:
		return model.MimeTypeJPEG
	}
}
