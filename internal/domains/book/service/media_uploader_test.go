package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/infrastructure/storage"
	"bookcatalog-backend/internal/shared"
)

type memoryObjectStore struct {
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	deleteErr error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.objects[key] = data
	m.types[key] = contentType
	return "http://minio.test/bookcatalog/" + key, nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

// newIPv4TestServer binds to IPv4 loopback to avoid IPv6 listener issues
func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	t.Cleanup(server.Close)
	return server
}

func coverPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMediaUploader_UploadFromURL(t *testing.T) {
	body := coverPNG(t, 400, 1200)
	srv := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/covers/1.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))

	store := newMemoryObjectStore()
	u := NewMediaUploader(store, storage.NewImageProcessor(), srv.Client(), nil)

	media, err := u.Upload(context.Background(), model.MediaSource{URL: srv.URL + "/covers/1.png"}, "bookcovers")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(media.ProviderID, "bookcovers/"))
	assert.True(t, strings.HasSuffix(media.ProviderID, ".jpg"))
	assert.Equal(t, "http://minio.test/bookcatalog/"+media.ProviderID, media.URL)
	assert.Equal(t, "image/jpeg", store.types[media.ProviderID])

	cfg, format, err := image.DecodeConfig(bytes.NewReader(store.objects[media.ProviderID]))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, storage.CoverHeight, cfg.Height)
}

func TestMediaUploader_UploadBytes(t *testing.T) {
	store := newMemoryObjectStore()
	u := NewMediaUploader(store, storage.NewImageProcessor(), nil, nil)

	media, err := u.Upload(context.Background(), model.MediaSource{Data: coverPNG(t, 20, 30)}, "manual")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(media.ProviderID, "manual/"))
	assert.Len(t, store.objects, 1)
}

func TestMediaUploader_Rejections(t *testing.T) {
	srv := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/text":
			_, _ = w.Write([]byte("<html>not a cover</html>"))
		default:
			http.NotFound(w, r)
		}
	}))

	store := newMemoryObjectStore()
	u := NewMediaUploader(store, storage.NewImageProcessor(), srv.Client(), nil)
	ctx := context.Background()

	_, err := u.Upload(ctx, model.MediaSource{}, "bookcovers")
	assert.ErrorIs(t, err, model.ErrUpload)

	_, err = u.Upload(ctx, model.MediaSource{URL: srv.URL + "/missing"}, "bookcovers")
	assert.ErrorIs(t, err, model.ErrUpload)

	_, err = u.Upload(ctx, model.MediaSource{URL: srv.URL + "/text"}, "bookcovers")
	assert.ErrorIs(t, err, model.ErrUpload)
	assert.ErrorIs(t, err, model.ErrInvalidImageFormat)

	small := NewMediaUploader(store, &storage.ImageProcessor{MaxSize: 64}, nil, nil)
	_, err = small.Upload(ctx, model.MediaSource{Data: coverPNG(t, 200, 200)}, "bookcovers")
	assert.ErrorIs(t, err, model.ErrImageTooLarge)

	store.uploadErr = errors.New("bucket quota exceeded")
	_, err = u.Upload(ctx, model.MediaSource{Data: coverPNG(t, 10, 10)}, "bookcovers")
	assert.ErrorIs(t, err, model.ErrUpload)

	assert.Empty(t, store.objects)
}

func TestMediaUploader_Delete(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		store := newMemoryObjectStore()
		store.objects["bookcovers/a.jpg"] = []byte{1}
		queue := &fakeEnqueuer{}
		u := NewMediaUploader(store, storage.NewImageProcessor(), nil, queue)

		require.NoError(t, u.Delete(context.Background(), "bookcovers/a.jpg"))
		assert.Empty(t, store.objects)
		assert.Empty(t, queue.tasks)
	})

	t.Run("deferred to worker", func(t *testing.T) {
		store := newMemoryObjectStore()
		store.deleteErr = errors.New("503 slow down")
		queue := &fakeEnqueuer{}
		u := NewMediaUploader(store, storage.NewImageProcessor(), nil, queue)

		require.NoError(t, u.Delete(context.Background(), "bookcovers/a.jpg"))
		require.Len(t, queue.tasks, 1)
		assert.Equal(t, shared.TypeDeleteCover, queue.tasks[0].Type())

		var payload model.DeleteCoverPayload
		require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
		assert.Equal(t, "bookcovers/a.jpg", payload.ProviderID)
	})

	t.Run("nothing works", func(t *testing.T) {
		store := newMemoryObjectStore()
		store.deleteErr = errors.New("503 slow down")
		u := NewMediaUploader(store, storage.NewImageProcessor(), nil, &fakeEnqueuer{err: errors.New("redis down")})

		assert.Error(t, u.Delete(context.Background(), "bookcovers/a.jpg"))
	})
}
