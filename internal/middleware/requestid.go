package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dealopia/deals-service/internal/pkg/cuid2"
)

// RequestIDHeader is the header the request ID is read from and echoed on.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestIDMiddleware assigns every request a time-sortable ID unless the
// caller already supplied one, and echoes it on the response so callers can
// correlate logs across services.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = cuid2.GeneratePrefixedId("req", cuid2.PrefixedIdOptions{TimeSortable: true})
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestID returns the ID assigned to the current request, or "" when the
// middleware is not installed.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
