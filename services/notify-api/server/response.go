package server

import "github.com/gin-gonic/gin"

// apiResponse is the envelope every endpoint answers with: the http status
// repeated in the body, a human message and an optional data payload.
type apiResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func respond(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{Status: status, Message: message})
}

func respondData(c *gin.Context, status int, message string, data any) {
	c.JSON(status, apiResponse{Status: status, Message: message, Data: data})
}
