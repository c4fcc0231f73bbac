// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/verso-cms/verso/internal/blob"
	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/imaging"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/util"
)

// MaxUploadSize bounds one asset upload.
const MaxUploadSize = 20 * 1024 * 1024 // 20MB

// Assets handles file uploads: the blob write, image variant rendering and
// the draft asset row.
type Assets struct {
	drafts *Drafts
	blobs  blob.Store
	logger *slog.Logger
}

func NewAssets(drafts *Drafts, blobs blob.Store, logger *slog.Logger) *Assets {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assets{drafts: drafts, blobs: blobs, logger: logger}
}

// UploadParams describe one upload.
type UploadParams struct {
	Filename  string
	Body      io.Reader
	MimeType  string
	Alt       string
	SessionID string
}

// Upload stores the file, renders variants for raster images and creates
// the draft asset row. The asset goes live on its first publish.
func (a *Assets) Upload(ctx context.Context, p UploadParams) (*model.Entity, error) {
	data, err := io.ReadAll(io.LimitReader(p.Body, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrConstraint, MaxUploadSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", core.ErrConstraint)
	}

	id := uuid.NewString()
	filename := safeFilename(p.Filename)
	content := model.AssetContent{
		Filename: filename,
		MimeType: p.MimeType,
		Size:     int64(len(data)),
		Alt:      p.Alt,
	}

	// Raster images get their real MIME type from the magic bytes plus
	// rendered variants; everything else is stored as-is.
	if img, err := imaging.Decode(data); err == nil {
		content.MimeType = img.MimeType()
		variants, err := a.renderVariants(ctx, img, id, filename)
		if err != nil {
			return nil, err
		}
		content.Variants = variants
	} else if !model.IsSupportedMimeType(p.MimeType) {
		return nil, fmt.Errorf("%w: unsupported upload type %q", core.ErrConstraint, p.MimeType)
	}

	storagePath, err := a.blobs.Put(ctx, assetPath(id, filename), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: storing upload: %v", core.ErrStorageUnavailable, err)
	}
	content.StoragePath = storagePath

	contentMap, err := model.EncodeContent(&content)
	if err != nil {
		return nil, err
	}
	res, err := a.drafts.Save(ctx, SaveParams{
		Kind:      model.KindAsset,
		ID:        id,
		Content:   contentMap,
		SessionID: p.SessionID,
	})
	if err != nil {
		// The row failed; don't leak the blobs.
		a.removeUploaded(ctx, &content)
		return nil, err
	}

	a.logger.Info("asset uploaded", "id", id, "filename", filename, "size", content.Size)
	return &res.Entity, nil
}

// PublicURL resolves an asset storage path to its serving URL.
func (a *Assets) PublicURL(storagePath string) string {
	return a.blobs.PublicURL(storagePath)
}

func (a *Assets) renderVariants(ctx context.Context, img *imaging.Image, id, filename string) ([]model.AssetVariant, error) {
	var variants []model.AssetVariant
	for _, variantType := range []string{model.VariantThumbnail, model.VariantMedium} {
		out, err := img.Variant(model.ImageVariants[variantType])
		if err != nil {
			return nil, fmt.Errorf("rendering %s variant: %w", variantType, err)
		}
		variantPath, err := a.blobs.Put(ctx, assetPath(id, variantType+"_"+filename), bytes.NewReader(out.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: storing %s variant: %v", core.ErrStorageUnavailable, variantType, err)
		}
		variants = append(variants, model.AssetVariant{
			Type:        variantType,
			StoragePath: variantPath,
			Width:       int64(out.Width),
			Height:      int64(out.Height),
		})
	}
	return variants, nil
}

func (a *Assets) removeUploaded(ctx context.Context, content *model.AssetContent) {
	for _, p := range content.StoragePaths() {
		if err := a.blobs.Remove(ctx, p); err != nil {
			a.logger.Warn("removing orphaned upload failed", "path", p, "error", err)
		}
	}
}

func assetPath(id, filename string) string {
	return "assets/" + id + "/" + filename
}

// safeFilename keeps the extension and slugifies the rest.
func safeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	stem := util.Slugify(strings.TrimSuffix(base, path.Ext(base)))
	if stem == "" {
		stem = "file"
	}
	return stem + ext
}
