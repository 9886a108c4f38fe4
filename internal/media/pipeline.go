package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"path"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/chatcrm/wagateway/internal/store"
)

const (
	// MaxAssetBytes bounds the inbound media download.
	MaxAssetBytes int64 = 16 << 20

	// thumbnailEdge is the longest edge of the generated thumbnail.
	thumbnailEdge = 320

	jpegQuality = 85
)

// Downloader fetches inbound media bytes from the messaging platform.
type Downloader interface {
	DownloadMedia(ctx context.Context, botToken, mediaID string, maxBytes int64) (io.ReadCloser, string, error)
}

// Uploader stores processed bytes and returns a stable reference.
type Uploader interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// AssetStore persists asset records.
type AssetStore interface {
	CreateMediaAsset(ctx context.Context, asset store.MediaAsset) (store.MediaAsset, error)
}

// ProcessInput identifies the media to run through the pipeline.
type ProcessInput struct {
	BusinessAccount string
	BotToken        string
	InboundEventID  string
	MediaID         string
}

// Pipeline downloads, normalizes, and stores inbound media. Keys are
// content-addressed, so re-running the pipeline for the same remote media
// overwrites identical bytes and is safe under webhook replay.
type Pipeline struct {
	downloader Downloader
	uploader   Uploader
	assets     AssetStore
	logger     *slog.Logger
}

// NewPipeline creates a media pipeline.
func NewPipeline(log *slog.Logger, downloader Downloader, uploader Uploader, assets AssetStore) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		downloader: downloader,
		uploader:   uploader,
		assets:     assets,
		logger:     log.With(slog.String("service", "media")),
	}
}

// Process runs the full pipeline for one inbound media reference and
// returns the persisted asset.
func (p *Pipeline) Process(ctx context.Context, input ProcessInput) (store.MediaAsset, error) {
	reader, _, err := p.downloader.DownloadMedia(ctx, input.BotToken, input.MediaID, MaxAssetBytes)
	if err != nil {
		return store.MediaAsset{}, mediaErr(ReasonDownload, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return store.MediaAsset{}, mediaErr(ReasonDownload, err)
	}
	if int64(len(raw)) > MaxAssetBytes {
		return store.MediaAsset{}, mediaErr(ReasonTooLarge, fmt.Errorf("media exceeds %d bytes", MaxAssetBytes))
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return store.MediaAsset{}, mediaErr(ReasonUnsupported, err)
	}

	normalized, err := encodeJPEG(src)
	if err != nil {
		return store.MediaAsset{}, mediaErr(ReasonUnsupported, err)
	}
	thumb, err := encodeJPEG(scaleDown(src, thumbnailEdge))
	if err != nil {
		return store.MediaAsset{}, mediaErr(ReasonUnsupported, err)
	}

	hash := sha256.Sum256(normalized)
	contentHash := hex.EncodeToString(hash[:])
	storageKey := assetKey(input.BusinessAccount, contentHash, ".jpg")
	thumbnailKey := assetKey(input.BusinessAccount, contentHash, "_thumb.jpg")

	if _, err := p.uploader.Put(ctx, storageKey, normalized, "image/jpeg"); err != nil {
		return store.MediaAsset{}, mediaErr(ReasonUpload, err)
	}
	if _, err := p.uploader.Put(ctx, thumbnailKey, thumb, "image/jpeg"); err != nil {
		return store.MediaAsset{}, mediaErr(ReasonUpload, err)
	}

	asset, err := p.assets.CreateMediaAsset(ctx, store.MediaAsset{
		InboundEventID:  input.InboundEventID,
		BusinessAccount: input.BusinessAccount,
		OriginalMediaID: input.MediaID,
		ContentHash:     contentHash,
		ContentType:     "image/jpeg",
		StorageKey:      storageKey,
		ThumbnailKey:    thumbnailKey,
		SizeBytes:       int64(len(normalized)),
	})
	if err != nil {
		return store.MediaAsset{}, fmt.Errorf("persist media asset: %w", err)
	}
	p.logger.Info("media processed",
		slog.String("business_account", input.BusinessAccount),
		slog.String("media_id", input.MediaID),
		slog.String("storage_key", storageKey),
	)
	return asset, nil
}

func assetKey(account, contentHash, suffix string) string {
	return path.Join(account, "media", contentHash[:4], contentHash+suffix)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scaleDown resizes img so its longest edge is at most edge pixels; images
// already small enough are returned unchanged.
func scaleDown(img image.Image, edge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= edge && h <= edge {
		return img
	}
	var outW, outH int
	if w >= h {
		outW = edge
		outH = h * edge / w
	} else {
		outH = edge
		outW = w * edge / h
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
