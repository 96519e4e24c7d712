package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/auth"
	"dataroom/internal/clock"
	"dataroom/internal/config"
	"dataroom/internal/document"
	"dataroom/internal/grant"
	"dataroom/internal/reporting"
	"dataroom/internal/room"
	"dataroom/internal/viewer"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type flakyAuditor struct {
	inner *audit.Log
	down  bool
}

func (a *flakyAuditor) Append(ctx context.Context, e audit.Event) (audit.Event, error) {
	if a.down {
		return audit.Event{}, audit.ErrStorageUnavailable
	}
	return a.inner.Append(ctx, e)
}

type apiHarness struct {
	router  *gin.Engine
	auth    *auth.Manager
	events  *audit.MemoryRepo
	auditor *flakyAuditor
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	clk := clock.Fake(t0)
	rooms := room.NewMemoryRepo()
	docs := document.NewMemoryRepo()
	grants := grant.NewMemoryRepo()
	events := audit.NewMemoryRepo()
	log := audit.NewLog(events, clk, nil)
	auditor := &flakyAuditor{inner: log}

	require.NoError(t, rooms.Create(ctx, room.Room{ID: "room-1", DealID: "deal-1", Status: room.StatusActive, ExpiresAt: t0.Add(30 * 24 * time.Hour), SoftDeleteGraceDays: 7}))
	require.NoError(t, docs.Create(ctx, document.Document{ID: "doc-1", RoomID: "room-1", Name: "Indenture.pdf", PageCount: 2, Version: 1}))

	eng := access.NewEngine(rooms, grants, docs, auditor)
	eng.Clock = clk

	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	h := Handlers{
		Auth:      am,
		Engine:    eng,
		Viewer:    viewer.NewManager(eng, docs, rooms, auditor, viewer.Options{Clock: clk}),
		Rooms:     rooms,
		Documents: docs,
		Grants:    grants,
		Audit:     log,
		Reports:   reporting.NewService(reporting.NewAuditRepo(events)),
		Clock:     clk,
	}
	r := gin.New()
	h.Register(r, auth.RequireAccessToken(am, nil), RouteOptions{DevTokens: true})
	return &apiHarness{router: r, auth: am, events: events, auditor: auditor}
}

func (a *apiHarness) token(t *testing.T, identity, role string) string {
	t.Helper()
	pair, err := a.auth.IssuePair(time.Now(), auth.Subject{Identity: identity, Role: role})
	require.NoError(t, err)
	return pair.AccessToken
}

func (a *apiHarness) do(t *testing.T, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func decisionOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["decision"].(map[string]any)
	require.True(t, ok, "expected decision in %v", body)
	return d
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(t, http.MethodPost, "/v1/rooms/room-1/decisions", "", map[string]string{"action": "VIEW"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_UnknownRoleRejected(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(t, http.MethodGet, "/v1/me", a.token(t, "x@y.com", "AUDITOR"), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAPI_DevTokenIssuance(t *testing.T) {
	a := newAPI(t)
	code, body := a.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"identity": "issuer@x.com", "role": "issuer"})
	require.Equal(t, http.StatusOK, code)
	tok, _ := body["access_token"].(string)
	require.NotEmpty(t, tok)

	code, me := a.do(t, http.MethodGet, "/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ISSUER", me["role"])
}

func TestAPI_InviteThenViewFlow(t *testing.T) {
	a := newAPI(t)
	issuer := a.token(t, "issuer_member@issuer.com", "ISSUER")
	investor := a.token(t, "lender1@fund.com", "INVESTOR")

	// no grant yet
	code, body := a.do(t, http.MethodPost, "/v1/rooms/room-1/decisions", investor, map[string]string{"action": "VIEW", "document_id": "doc-1"})
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NO_ACTIVE_GRANT", decisionOf(t, body)["reason_code"])

	code, body = a.do(t, http.MethodPost, "/v1/rooms/room-1/grants", issuer, map[string]any{
		"identity": "lender1@fund.com", "role": "investor", "expires_on": t0.Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, code, "%v", body)

	code, body = a.do(t, http.MethodPost, "/v1/rooms/room-1/documents/doc-1/sessions", investor, nil)
	require.Equal(t, http.StatusCreated, code, "%v", body)
	sess := body["session"].(map[string]any)
	id := sess["session_id"].(string)
	assert.EqualValues(t, 1, sess["page"])

	code, body = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/interactions", investor, map[string]string{"kind": "download_blocked"})
	require.Equal(t, http.StatusOK, code, "%v", body)

	code, _ = a.do(t, http.MethodPost, "/v1/sessions/"+id+"/interactions", investor, map[string]string{"kind": "SCREENSHOT"})
	assert.Equal(t, http.StatusBadRequest, code)

	// sessions are private to their subject
	code, _ = a.do(t, http.MethodGet, "/v1/sessions/"+id, issuer, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do(t, http.MethodDelete, "/v1/sessions/"+id, investor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CLOSED", body["state"])

	var actions []audit.Action
	for _, e := range a.events.Events() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{
		audit.ActionDeniedNoGrant,
		audit.ActionGrantCreate,
		audit.ActionViewStart,
		audit.ActionDownloadBlocked,
		audit.ActionViewEnd,
	}, actions)
}

func TestAPI_AdminCommands(t *testing.T) {
	a := newAPI(t)
	admin := a.token(t, "compliance@platform.com", "ADMIN")
	investor := a.token(t, "lender1@fund.com", "INVESTOR")

	code, body := a.do(t, http.MethodPost, "/v1/admin/rooms/room-1/legal-hold", investor, nil)
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ROLE_NOT_PERMITTED", decisionOf(t, body)["reason_code"])

	code, body = a.do(t, http.MethodPost, "/v1/admin/rooms/room-1/legal-hold", admin, nil)
	require.Equal(t, http.StatusOK, code, "%v", body)
	assert.Equal(t, true, body["room"].(map[string]any)["legal_hold"])

	code, body = a.do(t, http.MethodPost, "/v1/admin/rooms/room-1/soft-delete", admin, nil)
	require.Equal(t, http.StatusConflict, code)
	d := decisionOf(t, body)
	assert.Equal(t, "INVALID_TRANSITION", d["reason_code"])
	assert.Equal(t, "LEGAL_HOLD", d["reason_detail"])

	evs := a.events.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, audit.ActionAdminBlocked, evs[0].Action)
	assert.Equal(t, audit.ActionApplyLegalHold, evs[1].Action)
	assert.Equal(t, audit.ActionForceSoftDelete, evs[2].Action)
	assert.Equal(t, audit.OutcomeDenied, evs[2].Outcome)

	code, _ = a.do(t, http.MethodPost, "/v1/admin/grants/nope/revoke", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_AuditQueryAndSummary(t *testing.T) {
	a := newAPI(t)
	issuer := a.token(t, "issuer_member@issuer.com", "ISSUER")
	investor := a.token(t, "lender1@fund.com", "INVESTOR")

	for i := 0; i < 3; i++ {
		a.do(t, http.MethodPost, "/v1/rooms/room-1/decisions", investor, map[string]string{"action": "VIEW"})
	}

	code, _ := a.do(t, http.MethodGet, "/v1/rooms/room-1/audit", investor, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(t, http.MethodGet, "/v1/rooms/room-1/audit?limit=2", issuer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["events"], 2)
	assert.Equal(t, true, body["has_more"])

	code, _ = a.do(t, http.MethodGet, "/v1/rooms/room-1/audit?after_seq=abc", issuer, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodGet, "/v1/rooms/room-1/audit/summary", issuer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["denied"])
}

func TestAPI_UnknownRoomIsNotFound(t *testing.T) {
	a := newAPI(t)
	issuer := a.token(t, "issuer_member@issuer.com", "ISSUER")
	code, _ := a.do(t, http.MethodPost, "/v1/rooms/nope/decisions", issuer, map[string]string{"action": "VIEW"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(t, http.MethodPost, "/v1/rooms/room-1/decisions", issuer, map[string]string{"action": "APPLY_LEGAL_HOLD"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, a.events.Events())
}

func TestAPI_AuditOutageFailsClosed(t *testing.T) {
	a := newAPI(t)
	issuer := a.token(t, "issuer_member@issuer.com", "ISSUER")
	a.auditor.down = true

	code, body := a.do(t, http.MethodPost, "/v1/rooms/room-1/decisions", issuer, map[string]string{"action": "VIEW"})
	require.Equal(t, http.StatusServiceUnavailable, code)
	d := decisionOf(t, body)
	assert.Equal(t, "DENY", d["outcome"])
	assert.Equal(t, "AUDIT_UNAVAILABLE", d["reason_code"])
}

func TestAPI_CreateRoomAndRegisterDocument(t *testing.T) {
	a := newAPI(t)
	issuer := a.token(t, "issuer_member@issuer.com", "ISSUER")
	mm := a.token(t, "mm@desk.com", "MARKET_MAKER")

	code, _ := a.do(t, http.MethodPost, "/v1/rooms", mm, map[string]any{"deal_id": "deal-2", "expires_at": t0.Add(time.Hour)})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(t, http.MethodPost, "/v1/rooms", issuer, map[string]any{"room_id": "room-2", "deal_id": "deal-2", "expires_at": t0.Add(time.Hour), "soft_delete_grace_days": 1})
	require.Equal(t, http.StatusCreated, code, "%v", body)
	assert.Equal(t, "ACTIVE", body["effective_status"])

	code, body = a.do(t, http.MethodPost, "/v1/rooms/room-2/documents", mm, map[string]any{"name": "Term sheet.pdf", "page_count": 3})
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ROLE_NOT_PERMITTED", decisionOf(t, body)["reason_code"])

	code, body = a.do(t, http.MethodPost, "/v1/rooms/room-2/documents", issuer, map[string]any{"name": "Term sheet.pdf", "folder_path": "/Legal", "page_count": 3})
	require.Equal(t, http.StatusCreated, code, "%v", body)

	code, body = a.do(t, http.MethodPost, "/v1/rooms/room-2/navigation", mm, map[string]string{"action": "DEAL_SELECT", "target": "deal-2"})
	require.Equal(t, http.StatusCreated, code, "%v", body)
}

func TestRateLimit_PerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(1, 1))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
