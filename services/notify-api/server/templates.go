package server

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/internal/store"
	"github.com/classnotify/notify-backend/pkg/logx"
)

type templateReq struct {
	Name    string `json:"name"    binding:"required"`
	Content string `json:"content" binding:"required"`
	Type    string `json:"type"    binding:"required"`
	Subject string `json:"subject"`
}

type templateResp struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func templateToResp(t store.TemplateRow) templateResp {
	return templateResp{
		ID:        t.ID,
		Name:      t.Name,
		Content:   t.Content,
		Type:      t.Type,
		Subject:   t.Subject.String,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// validateTemplateReq normalizes the channel type and rejects bodies with
// broken placeholder syntax up front, so dispatch never sees them.
func validateTemplateReq(req *templateReq) (string, bool) {
	req.Type = strings.ToLower(req.Type)
	if req.Type != notify.ChannelEmail && req.Type != notify.ChannelSMS {
		return "Template type must be 'email' or 'parent'", false
	}
	if _, err := notify.ExtractVariables(req.Content); err != nil {
		return "Template syntax error: " + err.Error(), false
	}
	return "", true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req templateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error())
		return
	}
	if msg, ok := validateTemplateReq(&req); !ok {
		respond(c, http.StatusBadRequest, msg)
		return
	}

	sender := senderFromContext(c)
	id, err := h.Store.InsertTemplate(c.Request.Context(), sender.UserID, req.Name, req.Content, req.Type, nullString(req.Subject))
	if err != nil {
		logx.L().Errorw("template_create_error", "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondData(c, http.StatusCreated, "Template created successfully.", gin.H{"template_id": id})
}

func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	sender := senderFromContext(c)
	t, err := h.Store.GetTemplateByID(c.Request.Context(), id, sender.UserID)
	if err != nil {
		logx.L().Errorw("template_get_error", "id", id, "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if t == nil {
		respond(c, http.StatusNotFound, "No Template Found")
		return
	}
	respondData(c, http.StatusOK, "Template fetched successfully", gin.H{"result": templateToResp(*t)})
}

func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req templateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error())
		return
	}
	if msg, ok := validateTemplateReq(&req); !ok {
		respond(c, http.StatusBadRequest, msg)
		return
	}

	sender := senderFromContext(c)
	found, err := h.Store.UpdateTemplate(c.Request.Context(), id, sender.UserID, req.Name, req.Content, req.Type, nullString(req.Subject))
	if err != nil {
		logx.L().Errorw("template_update_error", "id", id, "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !found {
		respond(c, http.StatusNotFound, "No Template Found")
		return
	}
	respond(c, http.StatusOK, "Template updated successfully.")
}

func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	sender := senderFromContext(c)
	found, err := h.Store.DeleteTemplate(c.Request.Context(), id, sender.UserID)
	if err != nil {
		logx.L().Errorw("template_delete_error", "id", id, "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !found {
		respond(c, http.StatusNotFound, "No Template Found")
		return
	}
	respond(c, http.StatusOK, "Template deleted successfully.")
}

func (h *Handlers) ListTemplates(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	kind := strings.ToLower(c.Query("type"))

	sender := senderFromContext(c)
	rows, err := h.Store.ListTemplates(c.Request.Context(), sender.UserID, kind, limit, offset)
	if err != nil {
		logx.L().Errorw("template_list_error", "error", err)
		respond(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	out := make([]templateResp, 0, len(rows))
	for _, t := range rows {
		out = append(out, templateToResp(t))
	}
	respondData(c, http.StatusOK, "Templates fetched successfully", gin.H{"result": out})
}
