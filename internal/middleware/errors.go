package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockpulse/internal/domain/dto"
	"github.com/guttosm/stockpulse/internal/logger"
)

// ErrorHandler is a Gin middleware that converts errors attached to the
// context (via c.Error) into a standardized JSON error response.
//
// Behavior:
//   - Lets the request run first (c.Next()).
//   - If handlers attached errors and no response was written yet,
//     logs the last error and responds with 500 and dto.NewErrorResponse.
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 {
		return
	}

	err := c.Errors.Last().Err
	logger.L().Error().Err(err).
		Str("path", c.Request.URL.Path).
		Msg("request failed")

	if !c.Writer.Written() {
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewErrorResponse("Internal server error", err))
	}
}

// AbortWithError writes a standardized error response with the given
// status code and aborts the request chain.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	logger.L().Warn().Err(err).
		Int("status", status).
		Str("path", c.Request.URL.Path).
		Msg(message)
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message, err))
}
