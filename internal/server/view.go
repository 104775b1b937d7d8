package server

import (
	"time"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/pkg/models"
)

// sessionView is the wire form of a booth snapshot. Images travel as data
// URLs so a browser can render them directly.
type sessionView struct {
	ID            string                         `json:"id"`
	Phase         booth.Phase                    `json:"phase"`
	SourceImage   string                         `json:"source_image,omitempty"`
	SelectedEra   *models.Era                    `json:"selected_era,omitempty"`
	CurrentResult string                         `json:"current_result,omitempty"`
	LastError     string                         `json:"last_error,omitempty"`
	Analysis      string                         `json:"analysis,omitempty"`
	Ops           map[booth.OpKind]booth.OpState `json:"ops"`
	CaptureMode   string                         `json:"capture_mode"`
	CaptureNotice string                         `json:"capture_notice,omitempty"`
	Version       uint64                         `json:"version"`
	UpdatedAt     time.Time                      `json:"updated_at"`
}

func newSessionView(s booth.Snapshot) sessionView {
	v := sessionView{
		ID:            s.ID,
		Phase:         s.Phase,
		SelectedEra:   s.SelectedEra,
		LastError:     s.LastError,
		Analysis:      s.Analysis,
		Ops:           s.Ops,
		CaptureMode:   string(s.CaptureMode),
		CaptureNotice: s.CaptureNotice,
		Version:       s.Version,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.SourceImage != nil {
		v.SourceImage = image.EncodeDataURL(*s.SourceImage)
	}
	if s.CurrentResult != nil {
		v.CurrentResult = image.EncodeDataURL(*s.CurrentResult)
	}
	return v
}

type analysisView struct {
	Analysis string      `json:"analysis"`
	Pending  bool        `json:"pending,omitempty"`
	Session  sessionView `json:"session"`
}

type erasView struct {
	Eras []models.Era `json:"eras"`
}

type healthView struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
