package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/taxi-etl-go/pkg/response"
)

// ActiveRun reports the run currently holding the pipeline, if any
type ActiveRun func() (runID string, busy bool)

// RequireIdle rejects run triggers with 409 while another run is in
// progress. The service still takes the run slot atomically; this only
// saves binding and validation work on requests that would lose anyway.
func RequireIdle(active ActiveRun) gin.HandlerFunc {
	return func(c *gin.Context) {
		if runID, busy := active(); busy {
			c.AbortWithStatusJSON(http.StatusConflict, response.Response{
				Code:    http.StatusConflict,
				Message: "pipeline run already in progress",
				Data:    gin.H{"run_id": runID},
			})
			return
		}
		c.Next()
	}
}
