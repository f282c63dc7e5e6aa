package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/supplychain_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIdMiddleware generates (or propagates) one correlation id per request
// and attaches it to the request context for logging.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// BusinessContextMiddleware pulls the tenant and actor headers into the request
// context. Every /api route requires X-Business-Id; the TenantGuard plugin scopes
// all queries by it from there on.
func BusinessContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := strings.TrimSpace(c.GetHeader("X-Business-Id"))
		if businessId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Business-Id header is required"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)

		userName := strings.TrimSpace(c.GetHeader("X-User-Name"))
		if userName == "" {
			userName = "System"
		}
		ctx = utils.SetUserNameInContext(ctx, userName)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
