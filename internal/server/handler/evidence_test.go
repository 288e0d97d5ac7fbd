package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

type fakeBlobReader struct {
	objects map[string][]byte
	listed  map[string][]string
}

func (f *fakeBlobReader) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]string, error) {
	return f.listed[prefix], nil
}

func newEvidenceMux(blobs domain.BlobReader) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewEvidenceHandler(blobs, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/evidence", h.ListMarketEvidence)
	mux.HandleFunc("GET /api/evidence", h.GetArchiveObject)
	return mux
}

func TestListMarketEvidence(t *testing.T) {
	blobs := &fakeBlobReader{
		listed: map[string][]string{
			"evidence/markets/7/": {
				"evidence/markets/7/1751371200.json",
				"evidence/markets/7/1751457600.json",
			},
		},
	}
	mux := newEvidenceMux(blobs)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/7/evidence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "1751371200.json")
	require.Contains(t, rec.Body.String(), "1751457600.json")
}

func TestListMarketEvidenceEmpty(t *testing.T) {
	mux := newEvidenceMux(&fakeBlobReader{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/9/evidence", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"keys":[]`)
}

func TestGetArchiveObject(t *testing.T) {
	body := `{"market_id":7,"outcome":"yes"}`
	blobs := &fakeBlobReader{
		objects: map[string][]byte{
			"evidence/markets/7/1751371200.json": []byte(body),
		},
	}
	mux := newEvidenceMux(blobs)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/evidence?key=evidence/markets/7/1751371200.json", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, body, rec.Body.String())
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}

func TestGetArchiveObjectNotFound(t *testing.T) {
	mux := newEvidenceMux(&fakeBlobReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/evidence?key=evidence/markets/7/0.json", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetArchiveObjectRejectsForeignPrefix(t *testing.T) {
	mux := newEvidenceMux(&fakeBlobReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/evidence?key=../secrets.toml", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
