package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"dataroom/internal/access"
	"dataroom/internal/audit"
	"dataroom/internal/reporting"

	"github.com/gin-gonic/gin"
)

// QueryAudit pages through one room's trail in ascending Seq order.
// Route-gated to ISSUER (and ADMIN).
func (h Handlers) QueryAudit(c *gin.Context) {
	f := audit.Filter{
		RoomID:          c.Param("room_id"),
		SubjectIdentity: strings.TrimSpace(c.Query("subject")),
		Action:          audit.Action(strings.ToUpper(c.Query("action"))),
		Outcome:         audit.Outcome(strings.ToUpper(c.Query("outcome"))),
	}
	var err error
	if f.AfterSeq, err = queryInt64(c, "after_seq"); err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	f.Limit = int(limit)
	if f.From, f.To, err = queryRange(c); err != nil {
		respondError(c, access.Decision{}, err)
		return
	}

	page, err := h.Audit.Query(c.Request.Context(), f)
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// RoomSummary is route-gated to ISSUER (and ADMIN).
func (h Handlers) RoomSummary(c *gin.Context) {
	from, to, err := queryRange(c)
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	out, err := h.Reports.RoomSummary(c.Request.Context(), reporting.RoomSummaryRequest{
		RoomID: c.Param("room_id"),
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// SubjectActivity is route-gated to ADMIN.
func (h Handlers) SubjectActivity(c *gin.Context) {
	from, to, err := queryRange(c)
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	out, err := h.Reports.SubjectActivity(c.Request.Context(), reporting.SubjectActivityRequest{
		SubjectIdentity: c.Param("identity"),
		Range:           reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, access.Decision{}, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, audit.ErrInvalidFilter
	}
	return n, nil
}

// queryRange parses optional RFC 3339 from/to parameters.
func queryRange(c *gin.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, audit.ErrInvalidFilter
		}
		from = t.UTC()
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, audit.ErrInvalidFilter
		}
		to = t.UTC()
	}
	return from, to, nil
}
