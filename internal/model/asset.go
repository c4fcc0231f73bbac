// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Supported MIME types
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
	MimeTypeSVG  = "image/svg+xml"
	MimeTypePDF  = "application/pdf"
	MimeTypeMP4  = "video/mp4"
	MimeTypeWebM = "video/webm"
)

// Image variant types
const (
	VariantThumbnail = "thumbnail"
	VariantMedium    = "medium"
)

// ImageVariantConfig defines settings for generating an image variant.
type ImageVariantConfig struct {
	Width   int
	Height  int
	Quality int
	Crop    bool // true = crop to exact size, false = fit within bounds
}

// ImageVariants defines the default image variant configurations.
var ImageVariants = map[string]ImageVariantConfig{
	VariantThumbnail: {Width: 150, Height: 150, Quality: 80, Crop: true},
	VariantMedium:    {Width: 800, Height: 600, Quality: 85, Crop: false},
}

// AssetVariant is one generated rendition of an uploaded image. Each variant
// owns its own storage path, which participates in garbage-collection
// reference counting like the original.
type AssetVariant struct {
	Type        string `json:"type"`
	StoragePath string `json:"storagePath"`
	Width       int64  `json:"width"`
	Height      int64  `json:"height"`
}

// AssetContent is the semantic content of an uploaded file. Assets follow the
// same draft/published split as every other kind so that deleting a draft
// never pulls storage out from under the published site.
type AssetContent struct {
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mimeType"`
	StoragePath string         `json:"storagePath"`
	Size        int64          `json:"size"`
	Alt         string         `json:"alt,omitempty"`
	Variants    []AssetVariant `json:"variants,omitempty"`
}

// IsImage returns true if the asset is a raster image that can have variants.
func (a *AssetContent) IsImage() bool {
	switch a.MimeType {
	case MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP:
		return true
	default:
		return false
	}
}

// StoragePaths returns the asset's own path plus all variant paths.
func (a *AssetContent) StoragePaths() []string {
	paths := make([]string, 0, len(a.Variants)+1)
	if a.StoragePath != "" {
		paths = append(paths, a.StoragePath)
	}
	for _, v := range a.Variants {
		if v.StoragePath != "" {
			paths = append(paths, v.StoragePath)
		}
	}
	return paths
}

// SupportedUploadTypes returns all MIME types accepted for upload.
func SupportedUploadTypes() []string {
	return []string{
		MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP, MimeTypeSVG,
		MimeTypePDF, MimeTypeMP4, MimeTypeWebM,
	}
}

// IsSupportedMimeType checks if a MIME type is accepted for upload.
func IsSupportedMimeType(mimeType string) bool {
	for _, t := range SupportedUploadTypes() {
		if t == mimeType {
			return true
		}
	}
	return false
}
