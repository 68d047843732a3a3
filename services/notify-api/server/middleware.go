package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classnotify/notify-backend/internal/dispatch"
	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/metrics"
)

const ctxSenderKey = "sender"

func Observability() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.Request.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", rid)

		c.Set("request_id", rid)
		c.Next()

		lat := time.Since(start).Seconds()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(lat)

		logx.L().Infow("http_access",
			"rid", rid,
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", lat,
			"client_ip", c.ClientIP(),
		)
	}
}

// Authenticate resolves the caller from a bearer token and stores the
// dispatch identity (user + school display names) in the request context.
// Token issuance itself lives in a separate auth service.
func (h *Handlers) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			respond(c, http.StatusUnauthorized, "Could not validate credentials")
			c.Abort()
			return
		}

		user, err := h.Store.GetUserByToken(c.Request.Context(), token)
		if err != nil {
			logx.L().Errorw("auth_lookup_error", "error", err)
			respond(c, http.StatusInternalServerError, "Internal Server Error")
			c.Abort()
			return
		}
		if user == nil {
			respond(c, http.StatusUnauthorized, "Could not validate credentials")
			c.Abort()
			return
		}

		schoolName := notify.DefaultSchoolName
		if user.SchoolID.Valid {
			school, err := h.Store.GetSchool(c.Request.Context(), user.SchoolID.Int64)
			if err != nil {
				logx.L().Errorw("auth_school_lookup_error", "user_id", user.ID, "error", err)
			} else if school != nil {
				schoolName = school.SchoolName
			}
		}

		c.Set(ctxSenderKey, dispatch.Sender{
			UserID:     user.ID,
			Name:       user.Name,
			SchoolName: schoolName,
		})
		c.Next()
	}
}
