package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classnotify/notify-backend/docs"
	"github.com/classnotify/notify-backend/pkg/metrics"
)

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", docs.SwaggerHTML)
	})
	r.GET("/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", docs.OpenAPI)
	})

	api := r.Group("/api/v1")

	// provider callbacks are unauthenticated
	api.POST("/webhook/twilio/sms/status", h.TwilioStatusWebhook)

	authed := api.Group("", h.Authenticate())
	authed.POST("/email/send", h.SendEmail)
	authed.POST("/sms/send", h.SendSMS)

	authed.POST("/templates", h.CreateTemplate)
	authed.GET("/templates", h.ListTemplates)
	authed.GET("/templates/:id", h.GetTemplate)
	authed.PUT("/templates/:id", h.UpdateTemplate)
	authed.DELETE("/templates/:id", h.DeleteTemplate)

	authed.GET("/logs", h.ListLogs)

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}
