package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classnotify/notify-backend/internal/store"
	"github.com/classnotify/notify-backend/pkg/logx"
)

type logResp struct {
	ID            int64     `json:"id"`
	MessageType   string    `json:"message_type"`
	Recipient     string    `json:"recipient"`
	RecipientName string    `json:"recipient_name"`
	Subject       string    `json:"subject,omitempty"`
	Content       string    `json:"content"`
	Status        bool      `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// dateRange resolves the date_filter presets against now. Custom ranges come
// from start_date/end_date (RFC3339).
func dateRange(c *gin.Context, now time.Time) (from, to *time.Time, ok bool) {
	midnight := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}

	switch c.Query("date_filter") {
	case "":
		return nil, nil, true
	case "today":
		f := midnight(now)
		return &f, &now, true
	case "yesterday":
		f := midnight(now.AddDate(0, 0, -1))
		t := midnight(now)
		return &f, &t, true
	case "last_7_days":
		f := midnight(now.AddDate(0, 0, -7))
		return &f, &now, true
	case "last_month":
		f := midnight(now.AddDate(0, -1, 0))
		return &f, &now, true
	case "custom":
		var fp, tp *time.Time
		if s := c.Query("start_date"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, nil, false
			}
			fp = &t
		}
		if s := c.Query("end_date"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, nil, false
			}
			tp = &t
		}
		return fp, tp, true
	default:
		return nil, nil, false
	}
}

func (h *Handlers) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := store.LogFilter{
		Recipient: c.Query("recipient"),
		Limit:     limit,
		Offset:    offset,
	}

	if s := c.Query("delivery_status"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			respond(c, http.StatusBadRequest, "delivery_status must be a boolean")
			return
		}
		filter.Status = &v
	}

	from, to, ok := dateRange(c, time.Now().UTC())
	if !ok {
		respond(c, http.StatusBadRequest, "invalid date filter")
		return
	}
	filter.From, filter.To = from, to

	sender := senderFromContext(c)
	rows, total, err := h.Store.ListLogs(c.Request.Context(), sender.UserID, filter)
	if err != nil {
		logx.L().Errorw("logs_list_error", "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	out := make([]logResp, 0, len(rows))
	for _, e := range rows {
		out = append(out, logResp{
			ID:            e.ID,
			MessageType:   e.MessageType,
			Recipient:     e.Recipient,
			RecipientName: e.RecipientName,
			Subject:       e.Subject.String,
			Content:       e.Content,
			Status:        e.Status,
			CreatedAt:     e.CreatedAt,
		})
	}
	respondData(c, http.StatusOK, "Logs fetched successfully", gin.H{
		"result": out,
		"pagination": gin.H{
			"total_count": total,
			"limit":       filter.Limit,
			"offset":      filter.Offset,
		},
	})
}
