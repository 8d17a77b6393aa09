package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"polo74/file-api/internal/model"
	"polo74/file-api/internal/notify"
	"polo74/file-api/middleware"
	"polo74/file-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeObjectStore serves objects out of memory with the same range
// semantics as the real client.
type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) GetRange(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

func (f *fakeObjectStore) Stat(_ context.Context, key string) (int64, error) {
	data, ok := f.objects[key]
	if !ok {
		return 0, errors.New("no such object")
	}
	return int64(len(data)), nil
}

type fakeEnqueuer struct {
	calls []struct{ fileID, filePath string }
	err   error
}

func (f *fakeEnqueuer) EnqueueProcess(_ context.Context, fileID, filePath string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, struct{ fileID, filePath string }{fileID, filePath})
	return nil
}

// newTestAPI wires the handlers against an in-memory database and the
// fakes above, with the same middleware order as the real router.
func newTestAPI(t *testing.T, store *fakeObjectStore, q *fakeEnqueuer) *API {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.User{}, model.File{}))

	a := &API{
		DB:    db,
		Argon: security.New(),
		Store: store,
		Queue: q,
		Hub:   notify.NewHub(),
	}

	router := gin.New()
	router.Use(middleware.NewRequestIDMiddleware())

	optionalJWT := middleware.NewOptionalJWTMiddleware()

	router.POST("/api/files", optionalJWT, a.FileUpload)
	router.GET("/api/files/:uuid", optionalJWT, a.FileFetch)
	router.GET("/api/files/:uuid/content", optionalJWT, a.FileServe)
	router.DELETE("/api/files/:uuid", optionalJWT, a.FileDelete)

	a.Router = router
	return a
}

func do(a *API, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

// makeObject fills the store with n deterministic bytes under key.
func makeObject(store *fakeObjectStore, key string, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}

	if store.objects == nil {
		store.objects = make(map[string][]byte)
	}
	store.objects[key] = data
	return data
}

func createProcessed(t *testing.T, a *API, uuid, key, mime string) {
	t.Helper()

	require.NoError(t, a.DB.Create(&model.File{
		UUID:       uuid,
		MimeType:   mime,
		Path:       "http://localhost:9000/files/" + key,
		StorageKey: key,
		Status:     model.StatusProcessed,
	}).Error)
}

func TestFileServeNoRange(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	data := makeObject(store, "vid.mp4", 1000)
	createProcessed(t, a, "uuid-1", "vid.mp4", "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-1/content", nil)
	w := do(a, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, data, w.Body.Bytes())
}

func TestFileServeRangeStart(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	data := makeObject(store, "vid.mp4", 1000)
	createProcessed(t, a, "uuid-1", "vid.mp4", "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-1/content", nil)
	req.Header.Set("Range", "bytes=0-99")
	w := do(a, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-99/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, data[:100], w.Body.Bytes())
}

func TestFileServeRangeOpenEnd(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	data := makeObject(store, "vid.mp4", 1000)
	createProcessed(t, a, "uuid-1", "vid.mp4", "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-1/content", nil)
	req.Header.Set("Range", "bytes=900-")
	w := do(a, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 900-999/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, data[900:], w.Body.Bytes())
}

func TestFileServeRangeInvalid(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	makeObject(store, "vid.mp4", 1000)
	createProcessed(t, a, "uuid-1", "vid.mp4", "video/mp4")

	for _, header := range []string{"bytes=abc", "bytes=0-1000", "bytes=1000-", "bytes=500-100"} {
		req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-1/content", nil)
		req.Header.Set("Range", header)
		w := do(a, req)

		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code, "header %q", header)
		assert.Equal(t, "bytes */1000", w.Header().Get("Content-Range"), "header %q", header)
	}
}

func TestFileServeLegacyLocator(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	data := makeObject(store, "old.mp4", 64)

	// Row written before the locator split: no StorageKey, only a URL
	require.NoError(t, a.DB.Create(&model.File{
		UUID:     "uuid-old",
		MimeType: "video/mp4",
		Path:     "http://localhost:9000/files/old.mp4",
		Status:   model.StatusProcessed,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-old/content", nil)
	w := do(a, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
}

func TestFileServeNotReady(t *testing.T) {
	a := newTestAPI(t, &fakeObjectStore{}, &fakeEnqueuer{})

	for _, status := range []model.FileStatus{model.StatusPending, model.StatusProcessing} {
		require.NoError(t, a.DB.Create(&model.File{
			UUID:     "uuid-" + string(status),
			MimeType: "video/mp4",
			Path:     "uploads/x.mp4",
			Status:   status,
		}).Error)

		req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-"+string(status)+"/content", nil)
		w := do(a, req)

		assert.Equal(t, http.StatusConflict, w.Code, "status %s", status)
	}
}

func TestFileServeNotFound(t *testing.T) {
	a := newTestAPI(t, &fakeObjectStore{}, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/api/files/ghost/content", nil)
	w := do(a, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileServeDeletedLooksAbsent(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	makeObject(store, "vid.mp4", 10)
	require.NoError(t, a.DB.Create(&model.File{
		UUID:       "uuid-del",
		MimeType:   "video/mp4",
		StorageKey: "vid.mp4",
		Status:     model.StatusProcessed,
		IsDeleted:  true,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-del/content", nil)
	w := do(a, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileServePrivateInvisibleToAnonymous(t *testing.T) {
	store := &fakeObjectStore{}
	a := newTestAPI(t, store, &fakeEnqueuer{})

	owner := "owner-1"
	makeObject(store, "vid.mp4", 10)
	require.NoError(t, a.DB.Create(&model.File{
		UUID:       "uuid-priv",
		MimeType:   "video/mp4",
		StorageKey: "vid.mp4",
		Status:     model.StatusProcessed,
		UploaderID: &owner,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-priv/content", nil)
	w := do(a, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileServeStoreFailureIsOpaque(t *testing.T) {
	// Empty store: Stat fails for every key
	a := newTestAPI(t, &fakeObjectStore{}, &fakeEnqueuer{})
	createProcessed(t, a, "uuid-1", "vid.mp4", "video/mp4")

	req := httptest.NewRequest(http.MethodGet, "/api/files/uuid-1/content", nil)
	w := do(a, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "no such object", "internal store errors must not leak")
}
