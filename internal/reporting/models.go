package reporting

import (
	"time"

	"dataroom/internal/audit"
)

// Common filtering inputs. From is inclusive, To exclusive.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RoomSummaryRequest requests compliance counts for one data room.
// RoomID is required; an empty Range covers the whole trail.

type RoomSummaryRequest struct {
	RoomID string    `json:"room_id"`
	Range  TimeRange `json:"range"`
}

type RoomSummary struct {
	RoomID string    `json:"room_id"`
	Range  TimeRange `json:"range"`

	TotalEvents int `json:"total_events"`
	Allowed     int `json:"allowed"`
	Denied      int `json:"denied"`

	ByAction       map[audit.Action]int `json:"by_action"`
	DeniedByReason map[audit.Reason]int `json:"denied_by_reason"`

	// Viewers are identities with at least one VIEW_START, sorted.
	Viewers         []string `json:"viewers"`
	DistinctViewers int      `json:"distinct_viewers"`

	SessionsStarted  int `json:"sessions_started"`
	SessionsTimedOut int `json:"sessions_timed_out"`
	BlockedExports   int `json:"blocked_exports"`

	FirstSeq int64 `json:"first_seq,omitempty"`
	LastSeq  int64 `json:"last_seq,omitempty"`
}

// SubjectActivityRequest summarises what one identity did across rooms.

type SubjectActivityRequest struct {
	SubjectIdentity string    `json:"subject_identity"`
	Range           TimeRange `json:"range"`
}

type SubjectActivity struct {
	SubjectIdentity string    `json:"subject_identity"`
	Range           TimeRange `json:"range"`

	Rooms          []string `json:"rooms"`
	Views          int      `json:"views"`
	Denied         int      `json:"denied"`
	BlockedExports int      `json:"blocked_exports"`
}
