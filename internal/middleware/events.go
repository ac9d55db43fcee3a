package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/events"
)

// FlushEvents drains the request's buffered entity-change events once the
// handler chain finishes. Flushing after c.Next keeps event publication off
// the critical path of the response.
func FlushEvents(bus *events.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if bus != nil {
			bus.Flush(c.Request.Context())
		}
	}
}
