package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptovision_backend/middleware"
	"cryptovision_backend/models"
	"cryptovision_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertController handles price alert requests
type AlertController struct {
	db     *gorm.DB
	alerts *services.AlertService
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB, alerts *services.AlertService) *AlertController {
	return &AlertController{db: db, alerts: alerts}
}

// GetAlerts returns the current user's alerts with pagination
// GET /api/v1/alerts
func (alc *AlertController) GetAlerts(c *gin.Context) {
	user := middleware.CurrentUser(c)
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	query := alc.db.Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// GetActiveAlerts returns the current user's alerts that are still eligible
// for evaluation. Past-expiry alerts are excluded even before the sweep has
// flipped their status.
// GET /api/v1/alerts/active
func (alc *AlertController) GetActiveAlerts(c *gin.Context) {
	user := middleware.CurrentUser(c)

	alerts, err := alc.alerts.ActiveAlertsForUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// GetAlert returns a single alert. Owner or superuser only.
// GET /api/v1/alerts/:id
func (alc *AlertController) GetAlert(c *gin.Context) {
	alert, ok := alc.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// CreateAlert creates a new price alert for the current user
// POST /api/v1/alerts
func (alc *AlertController) CreateAlert(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var request struct {
		Name        string          `json:"name" binding:"required"`
		Description string          `json:"description"`
		Symbol      string          `json:"symbol" binding:"required"`
		Condition   string          `json:"condition" binding:"required"`
		TargetPrice decimal.Decimal `json:"target_price"`
		ExpiresAt   *time.Time      `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	condition := models.AlertCondition(request.Condition)
	if !models.IsValidAlertCondition(condition) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid condition. Must be one of: >, >=, <, <=, ==, !="})
		return
	}
	if request.TargetPrice.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_price must be positive"})
		return
	}
	if request.ExpiresAt != nil && !request.ExpiresAt.After(time.Now().UTC()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
		return
	}

	alert := models.Alert{
		UserID:      user.ID,
		Name:        request.Name,
		Description: request.Description,
		Symbol:      strings.ToUpper(request.Symbol),
		Condition:   condition,
		TargetPrice: request.TargetPrice,
		Status:      models.AlertStatusActive,
		ExpiresAt:   request.ExpiresAt,
	}

	if err := alc.db.Create(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

// UpdateAlert partially updates an alert. Owner or superuser only. Status
// and trigger bookkeeping are not writable here.
// PUT /api/v1/alerts/:id
func (alc *AlertController) UpdateAlert(c *gin.Context) {
	alert, ok := alc.loadOwned(c)
	if !ok {
		return
	}

	var request struct {
		Name        *string          `json:"name"`
		Description *string          `json:"description"`
		Condition   *string          `json:"condition"`
		TargetPrice *decimal.Decimal `json:"target_price"`
		ExpiresAt   *time.Time       `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if request.Name != nil {
		updates["name"] = *request.Name
	}
	if request.Description != nil {
		updates["description"] = *request.Description
	}
	if request.Condition != nil {
		condition := models.AlertCondition(*request.Condition)
		if !models.IsValidAlertCondition(condition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid condition. Must be one of: >, >=, <, <=, ==, !="})
			return
		}
		updates["condition"] = condition
	}
	if request.TargetPrice != nil {
		if request.TargetPrice.LessThanOrEqual(decimal.Zero) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_price must be positive"})
			return
		}
		updates["target_price"] = *request.TargetPrice
	}
	if request.ExpiresAt != nil {
		updates["expires_at"] = *request.ExpiresAt
	}

	if len(updates) > 0 {
		if err := alc.db.Model(alert).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// CancelAlert cancels an active alert. Owner or superuser only.
// POST /api/v1/alerts/:id/cancel
func (alc *AlertController) CancelAlert(c *gin.Context) {
	alert, ok := alc.loadOwned(c)
	if !ok {
		return
	}

	if alert.Status != models.AlertStatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only active alerts can be cancelled"})
		return
	}

	if err := alc.alerts.Cancel(alert); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// DeleteAlert removes an alert. Owner or superuser only.
// DELETE /api/v1/alerts/:id
func (alc *AlertController) DeleteAlert(c *gin.Context) {
	alert, ok := alc.loadOwned(c)
	if !ok {
		return
	}

	if err := alc.db.Delete(alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// loadOwned fetches the alert from the :id param and enforces that the
// current user owns it or is a superuser. Writes the error response itself.
func (alc *AlertController) loadOwned(c *gin.Context) (*models.Alert, bool) {
	id := c.Param("id")
	user := middleware.CurrentUser(c)

	var alert models.Alert
	if err := alc.db.Where("id = ?", id).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return nil, false
	}

	if alert.UserID != user.ID && !user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enough permissions"})
		return nil, false
	}

	return &alert, true
}
