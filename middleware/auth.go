package middleware

import (
	"errors"
	"net/http"
	"strings"

	"cryptovision_backend/models"
	"cryptovision_backend/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const currentUserKey = "current_user"

// Authenticator resolves bearer tokens to user principals
type Authenticator struct {
	db     *gorm.DB
	tokens *security.TokenMaker
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(db *gorm.DB, tokens *security.TokenMaker) *Authenticator {
	return &Authenticator{db: db, tokens: tokens}
}

// RequireUser validates the bearer access token, loads the user and rejects
// disabled accounts. The resolved user is stored in the request context.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required. Use: Bearer <token>"})
			c.Abort()
			return
		}

		claims, err := a.tokens.VerifyAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			c.Abort()
			return
		}

		var user models.User
		if err := a.db.Where("id = ?", claims.Subject).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			}
			c.Abort()
			return
		}

		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Inactive user"})
			c.Abort()
			return
		}

		c.Set(currentUserKey, &user)
		c.Next()
	}
}

// RequireSuperuser allows only active superusers past
func (a *Authenticator) RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}
		if !user.IsSuperuser {
			c.JSON(http.StatusForbidden, gin.H{"error": "The user doesn't have enough privileges"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole passes users holding the named role. Superusers bypass the
// role check.
func (a *Authenticator) RequireRole(roleName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		hasRole, err := models.HasRole(a.db, user, roleName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check role"})
			c.Abort()
			return
		}
		if !hasRole {
			c.JSON(http.StatusForbidden, gin.H{"error": "User doesn't have the required role: " + roleName})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by RequireUser, or nil
func CurrentUser(c *gin.Context) *models.User {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}
