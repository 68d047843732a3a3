package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classnotify/notify-backend/internal/dispatch"
	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/internal/store"
	"github.com/classnotify/notify-backend/pkg/logx"
)

type storeAPI interface {
	GetUserByToken(ctx context.Context, token string) (*store.UserRow, error)
	GetSchool(ctx context.Context, id int64) (*store.SchoolRow, error)
	GetTemplateByID(ctx context.Context, id, userID int64) (*store.TemplateRow, error)
	InsertTemplate(ctx context.Context, userID int64, name, content, kind string, subject sql.NullString) (int64, error)
	UpdateTemplate(ctx context.Context, id, userID int64, name, content, kind string, subject sql.NullString) (bool, error)
	DeleteTemplate(ctx context.Context, id, userID int64) (bool, error)
	ListTemplates(ctx context.Context, userID int64, kind string, limit, offset int) ([]store.TemplateRow, error)
	ListLogs(ctx context.Context, userID int64, f store.LogFilter) ([]store.MessageLogRow, int, error)
}

type dispatcherAPI interface {
	DispatchEmail(ctx context.Context, sender dispatch.Sender, req notify.EmailRequest) (*dispatch.Result, error)
	DispatchSMS(ctx context.Context, sender dispatch.Sender, req notify.SMSRequest) (*dispatch.Result, error)
}

type reconcilerAPI interface {
	Apply(ctx context.Context, cb dispatch.StatusCallback) error
}

type Handlers struct {
	Store      storeAPI
	Dispatcher dispatcherAPI
	Reconciler reconcilerAPI
}

func NewHandlers(s *store.Store, d *dispatch.Dispatcher, r *dispatch.Reconciler) *Handlers {
	return &Handlers{Store: s, Dispatcher: d, Reconciler: r}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// senderFromContext reads the identity the auth middleware resolved.
func senderFromContext(c *gin.Context) dispatch.Sender {
	v, _ := c.Get(ctxSenderKey)
	s, _ := v.(dispatch.Sender)
	return s
}

// requireParentName enforces the upstream request-validation rule: every
// recipient must carry a non-empty parent_name variable before dispatch runs.
func requireParentName(vars map[string]string) error {
	if vars["parent_name"] == "" {
		return fmt.Errorf("Missing required variable: 'parent_name'")
	}
	return nil
}

func (h *Handlers) dispatchError(c *gin.Context, err error) {
	var notFound *dispatch.TemplateNotFoundError
	var missingVars *notify.MissingVariablesError
	var syntaxErr *notify.SyntaxError

	switch {
	case errors.As(err, &notFound):
		respond(c, http.StatusNotFound, "Template not found.")
	case errors.As(err, &missingVars):
		respond(c, http.StatusBadRequest,
			fmt.Sprintf("Missing required variables for %s: %s",
				missingVars.Recipient, strings.Join(missingVars.Missing, ", ")))
	case errors.As(err, &syntaxErr):
		respond(c, http.StatusBadRequest, "Template syntax error: "+syntaxErr.Reason)
	default:
		logx.L().Errorw("dispatch_error", "error", err)
		c.JSON(http.StatusInternalServerError, apiResponse{
			Status: http.StatusInternalServerError, Message: "Internal Server Error", Detail: err.Error(),
		})
	}
}

func (h *Handlers) SendEmail(c *gin.Context) {
	var req notify.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error())
		return
	}
	for _, g := range req.Groups {
		for _, r := range g.Recipients {
			if err := requireParentName(r.Variables); err != nil {
				respond(c, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	res, err := h.Dispatcher.DispatchEmail(c.Request.Context(), senderFromContext(c), req)
	if err != nil {
		h.dispatchError(c, err)
		return
	}

	if res.Partial() {
		respondData(c, http.StatusMultiStatus,
			fmt.Sprintf("Email sent to %d recipients, failed for %d", res.SuccessCount, len(res.Failed)),
			gin.H{"failed_recipients": res.Failed})
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("Email sent to %d recipients", res.SuccessCount))
}

func (h *Handlers) SendSMS(c *gin.Context) {
	var req notify.SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error())
		return
	}
	for _, g := range req.Groups {
		for _, r := range g.Recipients {
			if err := requireParentName(r.Variables); err != nil {
				respond(c, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	res, err := h.Dispatcher.DispatchSMS(c.Request.Context(), senderFromContext(c), req)
	if err != nil {
		h.dispatchError(c, err)
		return
	}

	if res.Partial() {
		respondData(c, http.StatusMultiStatus,
			fmt.Sprintf("SMS sent to %d recipients, failed for %d", res.SuccessCount, len(res.Failed)),
			gin.H{"failed_recipients": res.Failed})
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("SMS sent to %d recipients", res.SuccessCount))
}

// TwilioStatusWebhook consumes provider delivery receipts. The provider is
// unauthenticated and retries on non-2xx, so this always answers 200; any
// reconciliation problem is logged, never surfaced.
func (h *Handlers) TwilioStatusWebhook(c *gin.Context) {
	cb := dispatch.StatusCallback{
		SID:          c.PostForm("MessageSid"),
		Status:       c.PostForm("MessageStatus"),
		To:           c.PostForm("To"),
		ErrorMessage: c.PostForm("ErrorMessage"),
	}

	if err := h.Reconciler.Apply(c.Request.Context(), cb); err != nil {
		logx.L().Errorw("webhook_reconcile_error", "sid", cb.SID, "error", err)
	}
	respond(c, http.StatusOK, "Webhook received successfully.")
}
