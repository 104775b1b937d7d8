package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/image"
)

const (
	cameraWriteWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 4 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// cameraHello is the first message on a camera socket.
type cameraHello struct {
	Type        string              `json:"type"`
	Session     string              `json:"session"`
	Constraints capture.Constraints `json:"constraints"`
}

type cameraNotice struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// handleCamera attaches a browser webcam to the session's camera feed.
// Binary messages carry encoded stills (png or jpeg); text messages may carry
// the same as data URLs. The socket is closed once the booth releases the
// camera or another client attaches.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	feed, ok := ctrl.Capturer().Camera().(*capture.Feed)
	if !ok {
		writeErrorCode(w, http.StatusConflict, "camera_unsupported", "session has no camera feed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("camera upgrade failed")
		return
	}
	defer conn.Close()

	logger := s.logger.With().Str("session", ctrl.ID()).Logger()
	att := feed.Attach()
	defer att.Close()

	if err := conn.WriteJSON(cameraHello{
		Type:        "hello",
		Session:     ctrl.ID(),
		Constraints: feed.Requested(),
	}); err != nil {
		return
	}
	conn.SetReadLimit(capture.MaxUploadBytes)
	logger.Debug().Msg("camera attached")

	// Close the socket as soon as the stream is released so the read loop
	// unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-att.Done():
		case <-r.Context().Done():
		case <-s.closing:
		case <-stop:
			return
		}
		deadline := time.Now().Add(cameraWriteWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "camera released"), deadline)
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("camera socket closed unexpectedly")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
		case websocket.TextMessage:
			payload, err := image.DecodeDataURL(string(data))
			if err != nil {
				s.cameraNotice(conn, err)
				continue
			}
			data = payload.Data
		default:
			continue
		}

		if err := att.Push(data); err != nil {
			if errors.Is(err, capture.ErrStreamStopped) {
				return
			}
			s.cameraNotice(conn, err)
		}
	}
}

func (s *Server) cameraNotice(conn *websocket.Conn, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(cameraWriteWait))
	_ = conn.WriteJSON(cameraNotice{Type: "error", Detail: err.Error()})
}
