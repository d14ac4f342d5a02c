package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"cryptovision_backend/models"
	"cryptovision_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ModelController handles prediction model version requests
type ModelController struct {
	db     *gorm.DB
	models *services.ModelService
}

// NewModelController creates a new model controller
func NewModelController(db *gorm.DB, models *services.ModelService) *ModelController {
	return &ModelController{db: db, models: models}
}

// GetModelVersions returns model versions, optionally filtered by name
// GET /api/v1/models
func (mc *ModelController) GetModelVersions(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	query := mc.db.Order("name, created_at DESC")
	if name := c.Query("name"); name != "" {
		query = query.Where("name = ?", name)
	}

	var versions []models.ModelVersion
	if err := query.Offset(skip).Limit(limit).Find(&versions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model versions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

// GetModelVersion returns a single model version by ID
// GET /api/v1/models/:id
func (mc *ModelController) GetModelVersion(c *gin.Context) {
	id := c.Param("id")

	var mv models.ModelVersion
	if err := mc.db.Where("id = ?", id).First(&mv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model version"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mv})
}

// GetProductionVersion returns the production version for a model name
// GET /api/v1/models/production/:name
func (mc *ModelController) GetProductionVersion(c *gin.Context) {
	name := c.Param("name")

	mv, err := mc.models.GetProductionVersion(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model version"})
		return
	}
	if mv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No production version for model: " + name})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mv})
}

// CreateModelVersion registers a new model version (analyst or superuser)
// POST /api/v1/models
func (mc *ModelController) CreateModelVersion(c *gin.Context) {
	var request struct {
		Name         string `json:"name" binding:"required"`
		Version      string `json:"version" binding:"required"`
		Path         string `json:"path" binding:"required"`
		Metrics      string `json:"metrics"`
		IsProduction bool   `json:"is_production"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := mc.models.GetByNameVersion(request.Name, request.Version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check model version"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "This model version already exists"})
		return
	}

	mv := models.ModelVersion{
		Name:         request.Name,
		Version:      request.Version,
		Path:         request.Path,
		Metrics:      request.Metrics,
		IsProduction: request.IsProduction,
	}
	if err := mc.models.Create(&mv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create model version"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": mv})
}

// UpdateModelVersion partially updates a model version. Setting
// is_production to true routes through the same transition as SetProduction.
// PUT /api/v1/models/:id
func (mc *ModelController) UpdateModelVersion(c *gin.Context) {
	id := c.Param("id")

	var mv models.ModelVersion
	if err := mc.db.Where("id = ?", id).First(&mv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Model version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model version"})
		return
	}

	var request struct {
		Path         *string `json:"path"`
		Metrics      *string `json:"metrics"`
		IsProduction *bool   `json:"is_production"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if request.Path != nil {
		updates["path"] = *request.Path
	}
	if request.Metrics != nil {
		updates["metrics"] = *request.Metrics
	}
	if request.IsProduction != nil && !*request.IsProduction {
		updates["is_production"] = false
	}

	if len(updates) > 0 {
		if err := mc.db.Model(&mv).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update model version"})
			return
		}
	}

	if request.IsProduction != nil && *request.IsProduction {
		promoted, err := mc.models.SetProductionVersion(mv.ID)
		if err != nil || promoted == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set production version"})
			return
		}
		mv = *promoted
	}

	c.JSON(http.StatusOK, gin.H{"data": mv})
}

// SetProduction promotes a model version to production, demoting any other
// version of the same name
// POST /api/v1/models/:id/production
func (mc *ModelController) SetProduction(c *gin.Context) {
	id := c.Param("id")

	mv, err := mc.models.SetProductionVersion(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set production version"})
		return
	}
	if mv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model version not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": mv})
}
