package mirror

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"keyforge/models"
)

type memStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.contentTypes[key] = contentType
	return nil
}

func (s *memStore) URL(ctx context.Context, key string) (string, error) {
	return "https://assets.test/" + key, nil
}

func glbBytes() []byte {
	return append([]byte("glTF"), 0x02, 0x00, 0x00, 0x00)
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestMirrorAssets_PerAssetFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x.glb":
			w.Write(glbBytes())
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := newMemStore()
	m := New(store, 5*time.Second, zaptest.NewLogger(t))

	out := m.MirrorAssets(context.Background(), "owner-a", "task-1", Assets{
		ThumbnailURL: server.URL + "/missing-thumb.png",
		ModelURLs:    models.ModelURLs{GLB: server.URL + "/x.glb"},
	})

	if out.ModelURLs.GLB != "https://assets.test/"+AssetKey("owner-a", "task-1", "model.glb") {
		t.Errorf("glb not mirrored: %q", out.ModelURLs.GLB)
	}
	if out.ThumbnailURL != server.URL+"/missing-thumb.png" {
		t.Errorf("broken thumbnail should fall back to the provider URL, got %q", out.ThumbnailURL)
	}
	if store.contentTypes[AssetKey("owner-a", "task-1", "model.glb")] != "model/gltf-binary" {
		t.Errorf("glb content type = %q", store.contentTypes[AssetKey("owner-a", "task-1", "model.glb")])
	}
}

func TestMirrorAssets_SkipsExistingObjects(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(glbBytes())
	}))
	defer server.Close()

	store := newMemStore()
	key := AssetKey("owner-a", "task-1", "model.glb")
	store.objects[key] = glbBytes()

	m := New(store, 5*time.Second, zaptest.NewLogger(t))

	out := m.MirrorAssets(context.Background(), "owner-a", "task-1", Assets{
		ModelURLs: models.ModelURLs{GLB: server.URL + "/x.glb"},
	})

	if requests != 0 {
		t.Errorf("existing object was re-downloaded %d times", requests)
	}
	if out.ModelURLs.GLB != "https://assets.test/"+key {
		t.Errorf("glb = %q", out.ModelURLs.GLB)
	}
}

func TestMirrorAssets_NormalizesLargeThumbnails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t, 1024, 768))
	}))
	defer server.Close()

	store := newMemStore()
	m := New(store, 5*time.Second, zaptest.NewLogger(t))

	out := m.MirrorAssets(context.Background(), "owner-a", "task-1", Assets{
		ThumbnailURL: server.URL + "/thumb.png",
	})

	key := AssetKey("owner-a", "task-1", "thumbnail")
	if out.ThumbnailURL != "https://assets.test/"+key {
		t.Fatalf("thumbnail not mirrored: %q", out.ThumbnailURL)
	}

	stored, _, err := image.Decode(bytes.NewReader(store.objects[key]))
	if err != nil {
		t.Fatalf("stored thumbnail not decodable: %v", err)
	}
	bounds := stored.Bounds()
	if bounds.Dx() > thumbnailMaxSize || bounds.Dy() > thumbnailMaxSize {
		t.Errorf("thumbnail not resized: %dx%d", bounds.Dx(), bounds.Dy())
	}
	if store.contentTypes[key] != "image/png" {
		t.Errorf("thumbnail content type = %q", store.contentTypes[key])
	}
}

func TestMirrorAssets_EmptyURLsStayEmpty(t *testing.T) {
	store := newMemStore()
	m := New(store, 5*time.Second, zaptest.NewLogger(t))

	out := m.MirrorAssets(context.Background(), "owner-a", "task-1", Assets{})

	if out.ThumbnailURL != "" || !out.ModelURLs.Empty() {
		t.Errorf("empty input produced output: %+v", out)
	}
	if len(store.objects) != 0 {
		t.Errorf("empty input uploaded %d objects", len(store.objects))
	}
}

func TestMirrorAssets_TextureSets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t, 64, 64))
	}))
	defer server.Close()

	store := newMemStore()
	m := New(store, 5*time.Second, zaptest.NewLogger(t))

	out := m.MirrorAssets(context.Background(), "owner-a", "task-1", Assets{
		TextureURLs: []models.TextureSet{
			{BaseColor: server.URL + "/base.png", Normal: server.URL + "/normal.png"},
		},
	})

	if len(out.TextureURLs) != 1 {
		t.Fatalf("texture sets = %d", len(out.TextureURLs))
	}
	wantBase := "https://assets.test/" + AssetKey("owner-a", "task-1", "texture_0_base_color")
	if out.TextureURLs[0].BaseColor != wantBase {
		t.Errorf("base color = %q, want %q", out.TextureURLs[0].BaseColor, wantBase)
	}
	if out.TextureURLs[0].Metallic != "" {
		t.Errorf("absent metallic map should stay empty, got %q", out.TextureURLs[0].Metallic)
	}
}
