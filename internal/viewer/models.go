package viewer

import (
	"errors"
	"time"

	"dataroom/internal/audit"
)

type Interaction string

const (
	PageNext        Interaction = "PAGE_NEXT"
	PagePrev        Interaction = "PAGE_PREV"
	ZoomIn          Interaction = "ZOOM_IN"
	ZoomOut         Interaction = "ZOOM_OUT"
	Fullscreen      Interaction = "FULLSCREEN"
	PrintBlocked    Interaction = "PRINT_BLOCKED"
	DownloadBlocked Interaction = "DOWNLOAD_BLOCKED"
)

func ParseInteraction(s string) (Interaction, error) {
	switch k := Interaction(s); k {
	case PageNext, PagePrev, ZoomIn, ZoomOut, Fullscreen, PrintBlocked, DownloadBlocked:
		return k, nil
	}
	return "", ErrUnknownInteraction
}

func (k Interaction) auditAction() audit.Action { return audit.Action(k) }

// exportAttempt reports interactions that are always recorded as blocked.
func (k Interaction) exportAttempt() bool { return k == PrintBlocked || k == DownloadBlocked }

type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

const (
	MinZoom     = 80
	MaxZoom     = 160
	ZoomStep    = 10
	DefaultZoom = 100

	DefaultTimeout = 10 * time.Minute
)

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID         string    `json:"session_id"`
	RoomID     string    `json:"room_id"`
	DocumentID string    `json:"document_id"`
	State      State     `json:"state"`
	Page       int       `json:"page"`
	PageCount  int       `json:"page_count"`
	Zoom       int       `json:"zoom"`
	Fullscreen bool      `json:"fullscreen"`
	Watermark  string    `json:"watermark"`
	OpenedAt   time.Time `json:"opened_at"`
	LastActive time.Time `json:"last_active"`
}

var (
	ErrSessionClosed      = errors.New("viewer: session closed")
	ErrSessionNotFound    = errors.New("viewer: session not found")
	ErrUnknownInteraction = errors.New("viewer: unknown interaction")
	ErrSessionLimit       = errors.New("viewer: too many open sessions")
	ErrNotAllowed         = errors.New("viewer: view not allowed")
)
