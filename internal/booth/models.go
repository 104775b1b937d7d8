package booth

import (
	"time"

	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/pkg/models"
)

type Phase string

const (
	PhaseHome         Phase = "home"
	PhaseCapturing    Phase = "capturing"
	PhaseEraSelection Phase = "era_selection"
	PhaseProcessing   Phase = "processing"
	PhaseResult       Phase = "result"
)

// OpKind names one of the remote operations a session can run.
type OpKind string

const (
	OpTransform OpKind = "transform"
	OpEdit      OpKind = "edit"
	OpAnalyze   OpKind = "analyze"
)

func OpKinds() []OpKind {
	return []OpKind{OpTransform, OpEdit, OpAnalyze}
}

type OpState string

const (
	OpIdle    OpState = "idle"
	OpRunning OpState = "running"
)

// Snapshot is an immutable copy of a session. Optional fields are nil or
// empty when absent.
type Snapshot struct {
	ID            string
	Phase         Phase
	SourceImage   *models.ImagePayload
	SelectedEra   *models.Era
	CurrentResult *models.ImagePayload
	LastError     string
	Analysis      string
	Ops           map[OpKind]OpState
	CaptureMode   capture.Mode
	CaptureNotice string
	Version       uint64
	UpdatedAt     time.Time
}

func (s Snapshot) Busy(kind OpKind) bool {
	return s.Ops[kind] == OpRunning
}

// InFlight reports whether any remote operation is running.
func (s Snapshot) InFlight() bool {
	for _, st := range s.Ops {
		if st == OpRunning {
			return true
		}
	}
	return false
}

// Empty reports whether every optional field is absent, which is the
// configuration a session starts in and returns to on reset.
func (s Snapshot) Empty() bool {
	return s.SourceImage == nil &&
		s.SelectedEra == nil &&
		s.CurrentResult == nil &&
		s.LastError == "" &&
		s.Analysis == ""
}

func clonePayload(p *models.ImagePayload) *models.ImagePayload {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}

func cloneEra(e *models.Era) *models.Era {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
