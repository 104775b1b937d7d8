package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/image"
)

const maxJSONBody = 1 << 20

// maxUploadBody admits a MaxUploadBytes image sent base64 encoded inside a
// JSON body.
var maxUploadBody = int64(base64.StdEncoding.EncodedLen(capture.MaxUploadBytes) + maxJSONBody)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthView{Status: "ok", Sessions: s.registry.Len()})
}

func (s *Server) handleEras(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, erasView{Eras: s.catalog.List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	ctrl := s.registry.Create()
	writeJSON(w, http.StatusCreated, newSessionView(ctrl.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := ctrl.StartCapture(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	s.intent(w, r, func(ctrl *booth.Controller) error { return ctrl.Snap() })
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.intent(w, r, func(ctrl *booth.Controller) error { return ctrl.Cancel() })
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.intent(w, r, func(ctrl *booth.Controller) error { return ctrl.Reset() })
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := ctrl.Back(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

type uploadRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
}

// handleUpload accepts either a multipart form with a "file" field or a JSON
// body carrying the image as a data URL.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)

	var err error
	if mediaType == "multipart/form-data" {
		err = s.uploadMultipart(ctrl, r)
	} else {
		err = s.uploadDataURL(ctrl, r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = capture.ErrUploadTooLarge
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

func (s *Server) uploadMultipart(ctrl *booth.Controller, r *http.Request) error {
	if err := r.ParseMultipartForm(capture.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", capture.ErrUnsupportedImage, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: missing file field", capture.ErrUnsupportedImage)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	return ctrl.Upload(data, header.Filename)
}

func (s *Server) uploadDataURL(ctrl *booth.Controller, r *http.Request) error {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", capture.ErrUnsupportedImage, err)
	}

	payload, err := image.DecodeDataURL(req.Image)
	if err != nil {
		return err
	}
	name := req.Filename
	if name == "" {
		name = "upload." + payload.MimeType.Extension()
	}
	return ctrl.Upload(payload.Data, name)
}

type eraRequest struct {
	EraID string `json:"era_id"`
}

// handleChooseEra runs the transform and answers once it completes. A failed
// transform is reported through last_error in a 200 response.
func (s *Server) handleChooseEra(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req eraRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := ctrl.ChooseEra(r.Context(), req.EraID); err != nil && isIntentError(err) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

type editRequest struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := ctrl.Edit(r.Context(), req.Instruction); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

// handleAnalyze answers 202 when an analysis is already running for the
// session; the text arrives later on the event stream.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	text, err := ctrl.Analyze(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if text == "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, analysisView{
		Analysis: text,
		Pending:  text == "",
		Session:  newSessionView(ctrl.Snapshot()),
	})
}

// handleDownload serves the current result as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	snap := ctrl.Snapshot()
	if snap.CurrentResult == nil {
		writeError(w, errNoResult)
		return
	}
	eraID := ""
	if snap.SelectedEra != nil {
		eraID = snap.SelectedEra.ID
	}

	name := image.DownloadFilename(eraID, snap.UpdatedAt)
	w.Header().Set("Content-Type", snap.CurrentResult.MimeType.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.CurrentResult.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.CurrentResult.Data)
}

// session resolves the {id} URL parameter, writing a 404 when unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*booth.Controller, bool) {
	ctrl, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return ctrl, true
}

// intent runs a synchronous intent that has no request body.
func (s *Server) intent(w http.ResponseWriter, r *http.Request, fn func(*booth.Controller) error) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := fn(ctrl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ctrl.Snapshot()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
