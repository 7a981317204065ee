package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-inventory/pkg/response"
)

// Identity headers set by the gateway after authentication
const (
	UserIDHeader   = "X-User-ID"
	TenantIDHeader = "X-Tenant-ID"

	ContextKeyUserID   = "user_id"
	ContextKeyTenantID = "tenant_id"
)

// Identity copies gateway-resolved identity headers into the gin context
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			c.Set(ContextKeyUserID, userID)
		}
		if tenantID := c.GetHeader(TenantIDHeader); tenantID != "" {
			c.Set(ContextKeyTenantID, tenantID)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a resolved buyer identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("UNAUTHORIZED", "User identity is required"))
			return
		}
		c.Next()
	}
}

// RequireTenant rejects requests without a resolved tenant scope
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetTenantID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("UNAUTHORIZED", "Tenant scope is required"))
			return
		}
		c.Next()
	}
}

// GetUserID returns the buyer or staff identity of the request
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

// GetTenantID returns the tenant scope of the request
func GetTenantID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyTenantID)
	return id, id != ""
}
