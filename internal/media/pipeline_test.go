package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcrm/wagateway/internal/store"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeDownloader struct {
	payload []byte
	err     error
}

func (f *fakeDownloader) DownloadMedia(ctx context.Context, botToken, mediaID string, maxBytes int64) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(bytes.NewReader(f.payload)), "image/png", nil
}

type fakeUploader struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeUploader) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = payload
	return "http://files/" + key, nil
}

type fakeAssets struct {
	created []store.MediaAsset
}

func (f *fakeAssets) CreateMediaAsset(ctx context.Context, asset store.MediaAsset) (store.MediaAsset, error) {
	asset.ID = "asset-1"
	f.created = append(f.created, asset)
	return asset, nil
}

func testInput() ProcessInput {
	return ProcessInput{
		BusinessAccount: "acct_1",
		BotToken:        "token-1",
		InboundEventID:  "ev-1",
		MediaID:         "media-9",
	}
}

func TestProcessNormalizesAndStores(t *testing.T) {
	uploader := &fakeUploader{}
	assets := &fakeAssets{}
	pipeline := NewPipeline(nil, &fakeDownloader{payload: pngBytes(t, 640, 480)}, uploader, assets)

	asset, err := pipeline.Process(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "asset-1", asset.ID)
	assert.Equal(t, "acct_1", asset.BusinessAccount)
	assert.Equal(t, "media-9", asset.OriginalMediaID)
	assert.Equal(t, "image/jpeg", asset.ContentType)
	assert.NotEmpty(t, asset.ContentHash)

	// One full-size asset plus one thumbnail, both decodable JPEG.
	require.Len(t, uploader.uploads, 2)
	full, ok := uploader.uploads[asset.StorageKey]
	require.True(t, ok)
	img, err := jpeg.Decode(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())

	thumb, ok := uploader.uploads[asset.ThumbnailKey]
	require.True(t, ok)
	timg, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 320, timg.Bounds().Dx())
	assert.Equal(t, 240, timg.Bounds().Dy())
}

func TestProcessIsContentAddressed(t *testing.T) {
	payload := pngBytes(t, 64, 64)
	uploader := &fakeUploader{}
	assets := &fakeAssets{}
	pipeline := NewPipeline(nil, &fakeDownloader{payload: payload}, uploader, assets)

	first, err := pipeline.Process(context.Background(), testInput())
	require.NoError(t, err)
	second, err := pipeline.Process(context.Background(), testInput())
	require.NoError(t, err)

	// Same bytes land on the same key, so re-processing overwrites in place.
	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Len(t, uploader.uploads, 2)
}

func TestProcessSmallImageKeepsSize(t *testing.T) {
	uploader := &fakeUploader{}
	pipeline := NewPipeline(nil, &fakeDownloader{payload: pngBytes(t, 100, 80)}, uploader, &fakeAssets{})

	asset, err := pipeline.Process(context.Background(), testInput())
	require.NoError(t, err)

	thumb := uploader.uploads[asset.ThumbnailKey]
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestProcessDownloadFailure(t *testing.T) {
	pipeline := NewPipeline(nil, &fakeDownloader{err: errors.New("connection reset")}, &fakeUploader{}, &fakeAssets{})

	_, err := pipeline.Process(context.Background(), testInput())
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonDownload, me.Reason)
}

func TestProcessUnsupportedFormat(t *testing.T) {
	pipeline := NewPipeline(nil, &fakeDownloader{payload: []byte("certainly not an image")}, &fakeUploader{}, &fakeAssets{})

	_, err := pipeline.Process(context.Background(), testInput())
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestProcessUploadFailure(t *testing.T) {
	pipeline := NewPipeline(nil, &fakeDownloader{payload: pngBytes(t, 32, 32)}, &fakeUploader{err: errors.New("rejected")}, &fakeAssets{})

	_, err := pipeline.Process(context.Background(), testInput())
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonUpload, me.Reason)
}

func TestProcessTooLarge(t *testing.T) {
	oversized := make([]byte, MaxAssetBytes+1)
	pipeline := NewPipeline(nil, &fakeDownloader{payload: oversized}, &fakeUploader{}, &fakeAssets{})

	_, err := pipeline.Process(context.Background(), testInput())
	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ReasonTooLarge, me.Reason)
}
