package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"dataroom/internal/audit"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Reports are computed only from the append-only audit trail; nothing here
// reads mutable room or grant state.

type Repository interface {
	ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	if r.From.IsZero() || r.To.IsZero() {
		return true
	}
	return r.To.After(r.From)
}

func (s *Service) RoomSummary(ctx context.Context, req RoomSummaryRequest) (RoomSummary, error) {
	if strings.TrimSpace(req.RoomID) == "" || !validRange(req.Range) {
		return RoomSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return RoomSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListEvents(ctx, audit.Filter{RoomID: req.RoomID, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return RoomSummary{}, err
	}

	out := RoomSummary{
		RoomID:         req.RoomID,
		Range:          req.Range,
		ByAction:       map[audit.Action]int{},
		DeniedByReason: map[audit.Reason]int{},
	}
	viewers := map[string]struct{}{}
	for _, e := range rows {
		out.TotalEvents++
		out.ByAction[e.Action]++
		if out.FirstSeq == 0 {
			out.FirstSeq = e.Seq
		}
		out.LastSeq = e.Seq

		switch e.Outcome {
		case audit.OutcomeAllowed:
			out.Allowed++
		case audit.OutcomeDenied:
			out.Denied++
			if e.ReasonCode != audit.ReasonNone {
				out.DeniedByReason[e.ReasonCode]++
			}
		}

		switch e.Action {
		case audit.ActionViewStart:
			out.SessionsStarted++
			viewers[strings.ToLower(e.SubjectIdentity)] = struct{}{}
		case audit.ActionSessionTimeout:
			out.SessionsTimedOut++
		case audit.ActionPrintBlocked, audit.ActionDownloadBlocked:
			out.BlockedExports++
		}
	}

	out.Viewers = sortedKeys(viewers)
	out.DistinctViewers = len(out.Viewers)
	return out, nil
}

func (s *Service) SubjectActivity(ctx context.Context, req SubjectActivityRequest) (SubjectActivity, error) {
	if strings.TrimSpace(req.SubjectIdentity) == "" || !validRange(req.Range) {
		return SubjectActivity{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SubjectActivity{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListEvents(ctx, audit.Filter{SubjectIdentity: req.SubjectIdentity, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return SubjectActivity{}, err
	}

	out := SubjectActivity{SubjectIdentity: req.SubjectIdentity, Range: req.Range}
	rooms := map[string]struct{}{}
	for _, e := range rows {
		rooms[e.RoomID] = struct{}{}
		if e.Outcome == audit.OutcomeDenied {
			out.Denied++
		}
		switch e.Action {
		case audit.ActionViewStart:
			out.Views++
		case audit.ActionPrintBlocked, audit.ActionDownloadBlocked:
			out.BlockedExports++
		}
	}
	out.Rooms = sortedKeys(rooms)
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
