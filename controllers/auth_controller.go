package controllers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"cryptovision_backend/middleware"
	"cryptovision_backend/models"
	"cryptovision_backend/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthController handles credential login and token refresh
type AuthController struct {
	db      *gorm.DB
	tokens  *security.TokenMaker
	limiter *middleware.LoginRateLimiter
}

// NewAuthController creates a new auth controller. limiter may be nil.
func NewAuthController(db *gorm.DB, tokens *security.TokenMaker, limiter *middleware.LoginRateLimiter) *AuthController {
	return &AuthController{db: db, tokens: tokens, limiter: limiter}
}

// tokenResponse is the OAuth2-style token pair payload
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Login exchanges credentials for an access+refresh token pair
// POST /api/v1/auth/login/access-token
func (ac *AuthController) Login(c *gin.Context) {
	// Accepts both form (OAuth2 password flow style) and JSON bodies
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" && password == "" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			username = body.Email
			password = body.Password
		}
	}

	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user models.User
	err := ac.db.Where("email = ?", username).First(&user).Error
	if err != nil || !user.CheckPassword(password) {
		if ac.limiter != nil {
			ac.limiter.RecordFailure(c.ClientIP())
		}
		log.Printf("Login failed for %s", username)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect email or password"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
		return
	}

	accessToken, err := ac.tokens.CreateAccessToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	refreshToken, err := ac.tokens.CreateRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	if ac.limiter != nil {
		ac.limiter.RecordSuccess(c.ClientIP())
	}

	now := time.Now().UTC()
	ac.db.Model(&user).Update("last_login", now)

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

// RefreshToken exchanges a valid refresh token for a new access token
// POST /api/v1/auth/refresh-token
func (ac *AuthController) RefreshToken(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := ac.tokens.VerifyRefreshToken(body.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	var user models.User
	if err := ac.db.Where("id = ?", claims.Subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
		return
	}

	accessToken, err := ac.tokens.CreateAccessToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    "bearer",
	})
}

// TestToken echoes the authenticated user
// POST /api/v1/auth/login/test-token
func (ac *AuthController) TestToken(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"data": user})
}
