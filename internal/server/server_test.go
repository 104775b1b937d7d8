package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	imgutil "github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/pkg/models"
)

type mockProvider struct {
	transformErr error
	editErr      error
	analyzeErr   error
	analysis     string

	transforms atomic.Int32
	analyses   atomic.Int32
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Transform(_ context.Context, _ models.ImagePayload, _ string) (models.ImagePayload, error) {
	m.transforms.Add(1)
	if m.transformErr != nil {
		return models.ImagePayload{}, m.transformErr
	}
	return models.NewImagePayload(models.MimePNG, []byte("transformed")), nil
}

func (m *mockProvider) Edit(_ context.Context, _ models.ImagePayload, _ string) (models.ImagePayload, error) {
	if m.editErr != nil {
		return models.ImagePayload{}, m.editErr
	}
	return models.NewImagePayload(models.MimePNG, []byte("edited")), nil
}

func (m *mockProvider) Analyze(_ context.Context, _ models.ImagePayload) (string, error) {
	m.analyses.Add(1)
	if m.analyzeErr != nil {
		return "", m.analyzeErr
	}
	return m.analysis, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T, p provider.Provider, cfg Config, cameraTimeout time.Duration) (*Server, *booth.Registry) {
	t.Helper()
	reg := booth.NewRegistry(func(id string) *booth.Controller {
		feed := capture.NewFeed(cameraTimeout)
		return booth.NewController(id, p, nil, capture.NewCapturer(feed))
	})
	t.Cleanup(reg.Close)
	return New(cfg, reg, nil), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var v sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

// toEraSelection creates a session and uploads a still through the data URL
// path. The camera feed has no client, so start falls back to upload.
func toEraSelection(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dataURL := imgutil.EncodeDataURL(models.NewImagePayload(models.MimePNG, pngBytes(t)))
	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/upload", uploadRequest{Image: dataURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func TestHealthAndEras(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/eras", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var eras erasView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eras))
	assert.Len(t, eras.Eras, models.DefaultCatalog().Len())
	assert.Equal(t, "ancient-egypt", eras.Eras[0].ID)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chronosnap_active_sessions")
}

func TestSessionLifecycle(t *testing.T) {
	p := &mockProvider{analysis: "A pharaoh in gold."}
	s, reg := newTestServer(t, p, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	v := decodeView(t, rec)
	assert.Equal(t, booth.PhaseHome, v.Phase)
	assert.Equal(t, 1, reg.Len())
	id := v.ID

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, booth.PhaseCapturing, v.Phase)
	assert.Equal(t, string(capture.ModeUpload), v.CaptureMode)
	assert.Equal(t, capture.CameraNotice, v.CaptureNotice)

	dataURL := imgutil.EncodeDataURL(models.NewImagePayload(models.MimePNG, pngBytes(t)))
	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/upload", uploadRequest{Image: dataURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	assert.Equal(t, booth.PhaseEraSelection, v.Phase)
	assert.True(t, strings.HasPrefix(v.SourceImage, "data:image/png;base64,"))

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/era", eraRequest{EraID: "ancient-egypt"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	assert.Equal(t, booth.PhaseResult, v.Phase)
	require.NotNil(t, v.SelectedEra)
	assert.Equal(t, "Ancient Egypt", v.SelectedEra.Name)
	assert.Equal(t, "data:image/png;base64,dHJhbnNmb3JtZWQ=", v.CurrentResult)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var av analysisView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &av))
	assert.Equal(t, "A pharaoh in gold.", av.Analysis)
	assert.Equal(t, "A pharaoh in gold.", av.Session.Analysis)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/edit", editRequest{Instruction: "add a hat"})
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, "data:image/png;base64,ZWRpdGVk", v.CurrentResult)
	assert.Empty(t, v.Analysis)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	cd := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(cd, `attachment; filename="chronosnap-ancient-egypt-`), cd)
	assert.True(t, strings.HasSuffix(cd, `.png"`), cd)
	assert.Equal(t, "edited", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, booth.PhaseHome, v.Phase)
	assert.Empty(t, v.SourceImage)
	assert.Empty(t, v.CurrentResult)
	assert.Nil(t, v.SelectedEra)

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, reg.Len())

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransformFailureIsNotAnHTTPError(t *testing.T) {
	p := &mockProvider{transformErr: errors.New("quota exceeded")}
	s, _ := newTestServer(t, p, Config{}, 10*time.Millisecond)
	h := s.Handler()
	id := toEraSelection(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/era", eraRequest{EraID: "wild-west"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	assert.Equal(t, booth.PhaseEraSelection, v.Phase)
	assert.Equal(t, "quota exceeded", v.LastError)
	assert.NotEmpty(t, v.SourceImage)
	assert.Empty(t, v.CurrentResult)
}

func TestOperationFailuresAreBadGateway(t *testing.T) {
	tests := []struct {
		name       string
		provider   *mockProvider
		path       string
		body       any
		wantCode   string
		wantDetail string
	}{
		{
			name:       "edit",
			provider:   &mockProvider{editErr: errors.New("boom")},
			path:       "/edit",
			body:       editRequest{Instruction: "make it sepia"},
			wantCode:   "edit_failed",
			wantDetail: booth.EditFailedMessage,
		},
		{
			name:       "analyze",
			provider:   &mockProvider{analyzeErr: errors.New("boom")},
			path:       "/analyze",
			wantCode:   "analyze_failed",
			wantDetail: booth.AnalyzeFailedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, reg := newTestServer(t, tt.provider, Config{}, 10*time.Millisecond)
			h := s.Handler()
			id := toEraSelection(t, h)
			rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/era", eraRequest{EraID: "roaring-20s"})
			require.Equal(t, http.StatusOK, rec.Code)

			rec = do(t, h, http.MethodPost, "/api/sessions/"+id+tt.path, tt.body)
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Error)
			assert.Equal(t, tt.wantDetail, e.Detail)

			ctrl, err := reg.Get(id)
			require.NoError(t, err)
			snap := ctrl.Snapshot()
			assert.Equal(t, booth.PhaseResult, snap.Phase)
			assert.Empty(t, snap.LastError)
			assert.Equal(t, "transformed", string(snap.CurrentResult.Data))
		})
	}
}

func TestIntentErrors(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	home := decodeView(t, rec).ID
	selecting := toEraSelection(t, h)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, "session_not_found"},
		{"delete unknown", http.MethodDelete, "/api/sessions/nope", nil, http.StatusNotFound, "session_not_found"},
		{"era from home", http.MethodPost, "/api/sessions/" + home + "/era", eraRequest{EraID: "wild-west"}, http.StatusConflict, "invalid_transition"},
		{"snap from home", http.MethodPost, "/api/sessions/" + home + "/capture/snap", nil, http.StatusConflict, "invalid_transition"},
		{"edit from home", http.MethodPost, "/api/sessions/" + home + "/edit", editRequest{Instruction: "x"}, http.StatusConflict, "invalid_transition"},
		{"analyze from home", http.MethodPost, "/api/sessions/" + home + "/analyze", nil, http.StatusConflict, "invalid_transition"},
		{"back from home", http.MethodPost, "/api/sessions/" + home + "/back", nil, http.StatusConflict, "invalid_transition"},
		{"download without result", http.MethodGet, "/api/sessions/" + home + "/download", nil, http.StatusConflict, "no_result"},
		{"unknown era", http.MethodPost, "/api/sessions/" + selecting + "/era", eraRequest{EraID: "jurassic"}, http.StatusBadRequest, "unknown_era"},
		{"unknown field", http.MethodPost, "/api/sessions/" + selecting + "/era", map[string]string{"era": "x"}, http.StatusBadRequest, "invalid_request"},
		{"snap after capture", http.MethodPost, "/api/sessions/" + selecting + "/capture/snap", nil, http.StatusConflict, "invalid_transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestUploadErrors(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	id := decodeView(t, rec).ID
	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name string
		body any
	}{
		{"not a data url", uploadRequest{Image: "data:image/png,abc"}},
		{"gif", uploadRequest{Image: "data:image/gif;base64,R0lGODlh"}},
		{"corrupt png", uploadRequest{Image: "data:image/png;base64,iVBORw0KGgo="}},
		{"empty", uploadRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/upload", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "invalid_image", decodeError(t, rec).Error)
		})
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, booth.PhaseCapturing, decodeView(t, rec).Phase)
}

func TestUploadDataURLSizeLimit(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	// png headers decode regardless of trailing bytes
	padded := func(size int) string {
		data := append(pngBytes(t), make([]byte, size)...)
		data = data[:size]
		return imgutil.EncodeDataURL(models.NewImagePayload(models.MimePNG, data))
	}

	tests := []struct {
		name     string
		size     int
		wantCode int
	}{
		{"16 MiB", 16 << 20, http.StatusOK},
		{"just under limit", capture.MaxUploadBytes - 1024, http.StatusOK},
		{"at limit", capture.MaxUploadBytes, http.StatusOK},
		{"over limit", capture.MaxUploadBytes + 1, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/sessions", nil)
			id := decodeView(t, rec).ID
			rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/upload", uploadRequest{Image: padded(tt.size)})
			require.Equal(t, tt.wantCode, rec.Code, "%.200s", rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, booth.PhaseEraSelection, decodeView(t, rec).Phase)
			} else {
				assert.Equal(t, "upload_too_large", decodeError(t, rec).Error)
			}
		})
	}
}

func TestUploadMultipart(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	id := decodeView(t, rec).ID
	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/capture/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, booth.PhaseEraSelection, v.Phase)
	assert.True(t, strings.HasPrefix(v.SourceImage, "data:image/png;base64,"))
}

func TestUploadMultipartMissingFile(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	id := decodeView(t, rec).ID
	do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/start", nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/capture/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_image", decodeError(t, rec).Error)
}

func TestCancelAndBack(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	h := s.Handler()
	id := toEraSelection(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	assert.Equal(t, booth.PhaseCapturing, v.Phase)
	assert.NotEmpty(t, v.SourceImage)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+id+"/capture/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booth.PhaseHome, decodeView(t, rec).Phase)
}

func TestAnalyzeReturnsExistingText(t *testing.T) {
	p := &mockProvider{analysis: "cached"}
	s, _ := newTestServer(t, p, Config{}, 10*time.Millisecond)
	h := s.Handler()
	id := toEraSelection(t, h)
	do(t, h, http.MethodPost, "/api/sessions/"+id+"/era", eraRequest{EraID: "prehistoric"})

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/analyze", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(1), p.analyses.Load())
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{RateLimit: 2}, 10*time.Millisecond)
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/sessions", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Error)

	// reads are not limited
	rec = do(t, h, http.MethodGet, "/api/eras", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func readEvent(t *testing.T, r *bufio.Reader) (string, sessionView) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event == "" {
				continue
			}
			var v sessionView
			if data != "" && data != "{}" {
				require.NoError(t, json.Unmarshal([]byte(data), &v))
			}
			return event, v
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStream(t *testing.T) {
	s, reg := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctrl := reg.Create()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(ts.URL + "/api/sessions/" + ctrl.ID() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	event, v := readEvent(t, r)
	assert.Equal(t, "snapshot", event)
	assert.Equal(t, booth.PhaseHome, v.Phase)

	_, err = ctrl.StartCapture(context.Background())
	require.NoError(t, err)

	// Acquisition publishes twice; the stream may coalesce them.
	for {
		event, v = readEvent(t, r)
		require.Equal(t, "snapshot", event)
		if v.CaptureMode == string(capture.ModeUpload) {
			break
		}
	}
	assert.Equal(t, booth.PhaseCapturing, v.Phase)

	require.NoError(t, reg.Delete(ctrl.ID()))
	for {
		event, _ = readEvent(t, r)
		if event == "closed" {
			break
		}
	}
}

func TestEventsUnknownSession(t *testing.T) {
	s, _ := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	rec := do(t, s.Handler(), http.MethodGet, "/api/sessions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCameraFeed(t *testing.T) {
	s, reg := newTestServer(t, &mockProvider{}, Config{}, 2*time.Second)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctrl := reg.Create()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + ctrl.ID() + "/camera"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello cameraHello
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, ctrl.ID(), hello.Session)
	assert.Equal(t, capture.DefaultConstraints(), hello.Constraints)

	// garbage is reported but keeps the socket open
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not an image")))
	var notice cameraNotice
	require.NoError(t, conn.ReadJSON(&notice))
	assert.Equal(t, "error", notice.Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pngBytes(t)))

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(ts.URL+"/api/sessions/"+ctrl.ID()+"/capture/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, capture.ModeLive, ctrl.Snapshot().CaptureMode)

	resp, err = client.Post(ts.URL+"/api/sessions/"+ctrl.ID()+"/capture/snap", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := ctrl.Snapshot()
	assert.Equal(t, booth.PhaseEraSelection, snap.Phase)
	require.NotNil(t, snap.SourceImage)
	assert.Equal(t, models.MimeJPEG, snap.SourceImage.MimeType)

	// the booth released the camera, so the server closes the socket
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestCameraWithoutFeed(t *testing.T) {
	reg := booth.NewRegistry(func(id string) *booth.Controller {
		return booth.NewController(id, &mockProvider{}, nil, nil)
	})
	t.Cleanup(reg.Close)
	s := New(Config{}, reg, nil)
	ctrl := reg.Create()

	rec := do(t, s.Handler(), http.MethodGet, "/api/sessions/"+ctrl.ID()+"/camera", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "camera_unsupported", decodeError(t, rec).Error)
}

func TestServeShutsDownCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, reg := newTestServer(t, &mockProvider{}, Config{}, 10*time.Millisecond)
	ctrl := reg.Create()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Timeout: 5 * time.Second, Transport: transport}
	base := "http://" + ln.Addr().String()

	resp, err := client.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// an open event stream must not hold up shutdown
	stream, err := client.Get(base + "/api/sessions/" + ctrl.ID() + "/events")
	require.NoError(t, err)
	_, _ = readEvent(t, bufio.NewReader(stream.Body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	stream.Body.Close()
	transport.CloseIdleConnections()
}
