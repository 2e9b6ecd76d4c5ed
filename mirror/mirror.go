package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"keyforge/models"
	"keyforge/storage"
	"keyforge/validation"
)

// thumbnails are normalized to fit this box before upload
const thumbnailMaxSize = 512

// Assets is the set of provider-hosted URLs for one finished task. Mirrored
// output has the same shape with each URL rewritten to system storage, or
// left as the provider URL when that single asset could not be copied.
type Assets struct {
	ThumbnailURL string
	ModelURLs    models.ModelURLs
	TextureURLs  []models.TextureSet
}

// Mirror relocates provider-hosted binaries into system-owned storage. It
// knows nothing about task status; callers decide when mirroring happens.
type Mirror struct {
	store  storage.Store
	client *http.Client
	logger *zap.Logger
}

func New(store storage.Store, timeout time.Duration, logger *zap.Logger) *Mirror {
	return &Mirror{
		store:  store,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// AssetKey is the deterministic destination for one asset role. Re-running a
// mirror pass computes the same key and finds the earlier copy.
func AssetKey(ownerID, taskID, role string) string {
	return fmt.Sprintf("owners/%s/tasks/%s/%s", ownerID, taskID, role)
}

// MirrorAssets copies every asset it can and returns the rewritten set. A
// failed asset falls back to its provider URL so one broken download never
// blocks the rest.
func (m *Mirror) MirrorAssets(ctx context.Context, ownerID, taskID string, assets Assets) Assets {
	out := Assets{
		ThumbnailURL: m.mirrorOne(ctx, ownerID, taskID, "thumbnail", assets.ThumbnailURL, true),
		ModelURLs: models.ModelURLs{
			GLB:  m.mirrorOne(ctx, ownerID, taskID, "model.glb", assets.ModelURLs.GLB, false),
			FBX:  m.mirrorOne(ctx, ownerID, taskID, "model.fbx", assets.ModelURLs.FBX, false),
			USDZ: m.mirrorOne(ctx, ownerID, taskID, "model.usdz", assets.ModelURLs.USDZ, false),
			OBJ:  m.mirrorOne(ctx, ownerID, taskID, "model.obj", assets.ModelURLs.OBJ, false),
		},
	}

	for i, set := range assets.TextureURLs {
		out.TextureURLs = append(out.TextureURLs, models.TextureSet{
			BaseColor: m.mirrorOne(ctx, ownerID, taskID, fmt.Sprintf("texture_%d_base_color", i), set.BaseColor, false),
			Metallic:  m.mirrorOne(ctx, ownerID, taskID, fmt.Sprintf("texture_%d_metallic", i), set.Metallic, false),
			Normal:    m.mirrorOne(ctx, ownerID, taskID, fmt.Sprintf("texture_%d_normal", i), set.Normal, false),
			Roughness: m.mirrorOne(ctx, ownerID, taskID, fmt.Sprintf("texture_%d_roughness", i), set.Roughness, false),
		})
	}

	return out
}

func (m *Mirror) mirrorOne(ctx context.Context, ownerID, taskID, role, srcURL string, thumbnail bool) string {
	if srcURL == "" {
		return ""
	}

	key := AssetKey(ownerID, taskID, role)

	exists, err := m.store.Exists(ctx, key)
	if err != nil {
		m.logger.Warn("Mirror existence check failed",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if exists {
		if url, err := m.store.URL(ctx, key); err == nil {
			return url
		}
		return srcURL
	}

	data, err := m.download(ctx, srcURL)
	if err != nil {
		m.logger.Warn("Asset download failed, keeping provider URL",
			zap.String("task_id", taskID),
			zap.String("role", role),
			zap.Error(err),
		)
		return srcURL
	}

	contentType := validation.DetectContentType(data, srcURL)
	if thumbnail && validation.IsImage(data) {
		if resized, err := normalizeThumbnail(data); err == nil {
			data = resized
			contentType = "image/png"
		}
	}

	if err := m.store.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		m.logger.Warn("Asset upload failed, keeping provider URL",
			zap.String("task_id", taskID),
			zap.String("role", role),
			zap.Error(err),
		)
		return srcURL
	}

	url, err := m.store.URL(ctx, key)
	if err != nil {
		m.logger.Warn("Mirrored URL resolution failed, keeping provider URL",
			zap.String("key", key),
			zap.Error(err),
		)
		return srcURL
	}

	m.logger.Info("Asset mirrored",
		zap.String("task_id", taskID),
		zap.String("role", role),
		zap.String("key", key),
	)

	return url
}

func (m *Mirror) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

func normalizeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > thumbnailMaxSize || bounds.Dy() > thumbnailMaxSize {
		img = imaging.Fit(img, thumbnailMaxSize, thumbnailMaxSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
