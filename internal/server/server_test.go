package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/report"
)

// stubReports implements ReportSource with fixed output per kind.
type stubReports struct {
	text string
	err  error
}

func (s *stubReports) Render(_ context.Context, kind report.Kind) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text + " [" + string(kind) + "]", nil
}

// -----------------------------------------------------------------------------
// Unit Tests (White-Box Testing of Handler Logic)
// -----------------------------------------------------------------------------

// TestHandleCalendar_ServingContent verifies that the handler writes the
// standard HTTP headers and body content when data is available.
func TestHandleCalendar_ServingContent(t *testing.T) {
	srv := New("0", nil) // Port irrelevant for handler tests
	expectedICS := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR")
	srv.UpdateCalendar(expectedICS)

	req := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	w := httptest.NewRecorder()
	srv.handleCalendar(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.MimeTextCalendar, resp.Header.Get(config.HeaderContentType))
	assert.Equal(t, config.MimeNoSniff, resp.Header.Get(config.HeaderXContentType))
	assert.NotEmpty(t, resp.Header.Get(config.HeaderETag))
	assert.NotEmpty(t, resp.Header.Get(config.HeaderLastModified))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, expectedICS, body)
}

func TestHandleCalendar_EmptyCacheReturns503(t *testing.T) {
	srv := New("0", nil)

	req := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	w := httptest.NewRecorder()
	srv.handleCalendar(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(config.HeaderRetryAfter))
}

// TestHandleCalendar_ETagCaching verifies that the server honors
// If-None-Match and returns 304 Not Modified to save bandwidth.
func TestHandleCalendar_ETagCaching(t *testing.T) {
	srv := New("0", nil)
	srv.UpdateCalendar([]byte("DATA_VERSION_1"))

	req1 := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	w1 := httptest.NewRecorder()
	srv.handleCalendar(w1, req1)

	etag := w1.Result().Header.Get(config.HeaderETag)
	require.NotEmpty(t, etag, "Server must provide an ETag")

	req2 := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	req2.Header.Set(config.HeaderIfNoneMatch, etag)
	w2 := httptest.NewRecorder()
	srv.handleCalendar(w2, req2)

	resp2 := w2.Result()
	defer func() { _ = resp2.Body.Close() }()

	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)
	body, _ := io.ReadAll(resp2.Body)
	assert.Empty(t, body, "Body must be empty on 304 Not Modified")
}

func TestHandleCalendar_ETagChangesWithContent(t *testing.T) {
	srv := New("0", nil)
	srv.UpdateCalendar([]byte("DATA_VERSION_1"))

	w1 := httptest.NewRecorder()
	srv.handleCalendar(w1, httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil))
	etag1 := w1.Result().Header.Get(config.HeaderETag)

	srv.UpdateCalendar([]byte("DATA_VERSION_2"))

	req := httptest.NewRequest(http.MethodGet, config.RouteCalendar, nil)
	req.Header.Set(config.HeaderIfNoneMatch, etag1)
	w2 := httptest.NewRecorder()
	srv.handleCalendar(w2, req)

	assert.Equal(t, http.StatusOK, w2.Result().StatusCode, "A stale ETag must get fresh content")
}

func TestHandleCalendar_HeadOmitsBody(t *testing.T) {
	srv := New("0", nil)
	srv.UpdateCalendar([]byte("CALENDAR_DATA"))

	req := httptest.NewRequest(http.MethodHead, config.RouteCalendar, nil)
	w := httptest.NewRecorder()
	srv.handleCalendar(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)
	assert.NotEmpty(t, resp.Header.Get(config.HeaderETag))
}

// -----------------------------------------------------------------------------
// Report Route Tests (through the router, so URL params resolve)
// -----------------------------------------------------------------------------

func reportRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Get(config.RouteReports, srv.handleReport)
	return r
}

func TestHandleReport_Success(t *testing.T) {
	srv := New("0", &stubReports{text: "report body"})
	router := reportRouter(srv)

	for _, kind := range []string{"today", "month", "upcoming"} {
		req := httptest.NewRequest(http.MethodGet, "/reports/"+kind, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, kind)
		assert.Equal(t, config.MimeTextPlain, resp.Header.Get(config.HeaderContentType))
		assert.Equal(t, "report body ["+kind+"]", string(body))
	}
}

func TestHandleReport_UnknownKind(t *testing.T) {
	srv := New("0", &stubReports{text: "x"})
	router := reportRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/reports/weekly", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestHandleReport_NoSourceReturns503(t *testing.T) {
	srv := New("0", nil)
	router := reportRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/reports/today", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}

func TestHandleReport_RenderFailure(t *testing.T) {
	srv := New("0", &stubReports{err: errors.New("store unavailable")})
	router := reportRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/reports/today", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "store unavailable", "internal errors stay internal")
}

func TestHandleHealth(t *testing.T) {
	srv := New("0", nil)

	w := httptest.NewRecorder()
	srv.handleHealth(w, httptest.NewRequest(http.MethodGet, config.RouteHealth, nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, config.HTTPMsgHealthy, string(body))
}

func TestStart_RequiresPort(t *testing.T) {
	srv := New("", nil)
	err := srv.Start(context.Background())
	assert.Error(t, err)
}
