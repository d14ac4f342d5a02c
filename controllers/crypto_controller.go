package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptovision_backend/models"
	"cryptovision_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CryptoController handles cryptocurrency, price history and prediction
// requests
type CryptoController struct {
	db     *gorm.DB
	prices *services.PriceService
}

// NewCryptoController creates a new crypto controller
func NewCryptoController(db *gorm.DB, prices *services.PriceService) *CryptoController {
	return &CryptoController{db: db, prices: prices}
}

// GetCryptocurrencies returns all cryptocurrencies with pagination
// GET /api/v1/crypto/cryptocurrencies
func (cc *CryptoController) GetCryptocurrencies(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	var cryptos []models.Cryptocurrency
	if err := cc.db.Order("id").Offset(skip).Limit(limit).Find(&cryptos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrencies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cryptos})
}

// GetActiveCryptocurrencies returns active cryptocurrencies ordered by symbol
// GET /api/v1/crypto/cryptocurrencies/active
func (cc *CryptoController) GetActiveCryptocurrencies(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	var cryptos []models.Cryptocurrency
	err := cc.db.Where("is_active = ?", true).
		Order("symbol").
		Offset(skip).Limit(limit).
		Find(&cryptos).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrencies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cryptos})
}

// GetCryptocurrency returns a single cryptocurrency by ID or symbol
// GET /api/v1/crypto/cryptocurrencies/:id
func (cc *CryptoController) GetCryptocurrency(c *gin.Context) {
	id := c.Param("id")

	var crypto models.Cryptocurrency
	if err := cc.db.Where("id = ? OR symbol = ?", id, id).First(&crypto).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrency"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": crypto})
}

// CreateCryptocurrency creates a new cryptocurrency (superuser only)
// POST /api/v1/crypto/cryptocurrencies
func (cc *CryptoController) CreateCryptocurrency(c *gin.Context) {
	var request struct {
		Symbol   string `json:"symbol" binding:"required"`
		Name     string `json:"name" binding:"required"`
		IsActive *bool  `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.Cryptocurrency
	if err := cc.db.Where("symbol = ?", request.Symbol).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A cryptocurrency with this symbol already exists"})
		return
	}

	crypto := models.Cryptocurrency{
		Symbol:   request.Symbol,
		Name:     request.Name,
		IsActive: true,
	}
	if request.IsActive != nil {
		crypto.IsActive = *request.IsActive
	}

	if err := cc.db.Create(&crypto).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create cryptocurrency"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": crypto})
}

// UpdateCryptocurrency partially updates a cryptocurrency (superuser only)
// PUT /api/v1/crypto/cryptocurrencies/:id
func (cc *CryptoController) UpdateCryptocurrency(c *gin.Context) {
	id := c.Param("id")

	var crypto models.Cryptocurrency
	if err := cc.db.Where("id = ?", id).First(&crypto).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrency"})
		return
	}

	var request struct {
		Name     *string `json:"name"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if request.Name != nil {
		updates["name"] = *request.Name
	}
	if request.IsActive != nil {
		updates["is_active"] = *request.IsActive
	}

	if len(updates) > 0 {
		if err := cc.db.Model(&crypto).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cryptocurrency"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": crypto})
}

// GetPriceHistory returns time-bucketed OHLCV history with gap-fill
// GET /api/v1/crypto/price-history
func (cc *CryptoController) GetPriceHistory(c *gin.Context) {
	cryptoID := c.Query("cryptocurrency_id")
	if cryptoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptocurrency_id is required"})
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC3339"})
		return
	}

	var end *time.Time
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC3339"})
			return
		}
		end = &parsed
	}

	interval := c.DefaultQuery("interval", "1h")

	candles, err := cc.prices.GetHistoricalData(cryptoID, start, end, interval)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval. Must be one of: 1m, 5m, 15m, 1h, 4h, 1d, 1w"})
			return
		}
		if errors.Is(err, services.ErrSpanTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch price history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": candles})
}

// GetLatestPrice returns the most recent candle for a cryptocurrency
// GET /api/v1/crypto/price-history/latest
func (cc *CryptoController) GetLatestPrice(c *gin.Context) {
	cryptoID := c.Query("cryptocurrency_id")
	if cryptoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptocurrency_id is required"})
		return
	}

	latest, err := cc.prices.GetLatest(cryptoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch latest price"})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No price data for cryptocurrency"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": latest})
}

// CreatePriceHistory ingests a batch of candles (analyst or superuser)
// POST /api/v1/crypto/price-history
func (cc *CryptoController) CreatePriceHistory(c *gin.Context) {
	var request struct {
		CryptocurrencyID string `json:"cryptocurrency_id" binding:"required"`
		Candles          []struct {
			Timestamp time.Time       `json:"timestamp" binding:"required"`
			Open      decimal.Decimal `json:"open"`
			High      decimal.Decimal `json:"high"`
			Low       decimal.Decimal `json:"low"`
			Close     decimal.Decimal `json:"close"`
			Volume    decimal.Decimal `json:"volume"`
		} `json:"candles" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var crypto models.Cryptocurrency
	if err := cc.db.Where("id = ?", request.CryptocurrencyID).First(&crypto).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
		return
	}

	rows := make([]models.PriceHistory, 0, len(request.Candles))
	for _, candle := range request.Candles {
		rows = append(rows, models.PriceHistory{
			CryptocurrencyID: crypto.ID,
			Timestamp:        candle.Timestamp.UTC(),
			Open:             candle.Open,
			High:             candle.High,
			Low:              candle.Low,
			Close:            candle.Close,
			Volume:           candle.Volume,
		})
	}

	if err := cc.prices.Insert(rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store price history"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"inserted": len(rows)}})
}

// GetPredictions returns predictions for a cryptocurrency within a range
// GET /api/v1/crypto/predictions
func (cc *CryptoController) GetPredictions(c *gin.Context) {
	cryptoID := c.Query("cryptocurrency_id")
	if cryptoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptocurrency_id is required"})
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC3339"})
		return
	}
	end := time.Now().UTC()
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC3339"})
			return
		}
		end = parsed
	}

	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	query := cc.db.Where("cryptocurrency_id = ? AND timestamp >= ? AND timestamp <= ?", cryptoID, start, end)
	if horizon := c.Query("horizon"); horizon != "" {
		query = query.Where("horizon = ?", horizon)
	}
	if mvID := c.Query("model_version_id"); mvID != "" {
		query = query.Where("model_version_id = ?", mvID)
	}

	var predictions []models.Prediction
	if err := query.Order("timestamp DESC").Offset(skip).Limit(limit).Find(&predictions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": predictions})
}

// GetLatestPrediction returns the newest prediction for a cryptocurrency
// and horizon
// GET /api/v1/crypto/predictions/latest
func (cc *CryptoController) GetLatestPrediction(c *gin.Context) {
	cryptoID := c.Query("cryptocurrency_id")
	if cryptoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptocurrency_id is required"})
		return
	}
	horizon := c.DefaultQuery("horizon", "24h")

	var prediction models.Prediction
	err := cc.db.Where("cryptocurrency_id = ? AND horizon = ?", cryptoID, horizon).
		Order("prediction_time DESC").
		First(&prediction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No prediction found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch prediction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prediction})
}

// CreatePrediction stores a new prediction (analyst or superuser)
// POST /api/v1/crypto/predictions
func (cc *CryptoController) CreatePrediction(c *gin.Context) {
	var request struct {
		CryptocurrencyID string           `json:"cryptocurrency_id" binding:"required"`
		ModelVersionID   string           `json:"model_version_id" binding:"required"`
		Timestamp        time.Time        `json:"timestamp" binding:"required"`
		PredictionTime   *time.Time       `json:"prediction_time"`
		Horizon          string           `json:"horizon" binding:"required"`
		PredictedPrice   decimal.Decimal  `json:"predicted_price"`
		ConfidenceUpper  *decimal.Decimal `json:"confidence_upper"`
		ConfidenceLower  *decimal.Decimal `json:"confidence_lower"`
		Metrics          string           `json:"metrics"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var crypto models.Cryptocurrency
	if err := cc.db.Where("id = ?", request.CryptocurrencyID).First(&crypto).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
		return
	}
	var mv models.ModelVersion
	if err := cc.db.Where("id = ?", request.ModelVersionID).First(&mv).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model version not found"})
		return
	}

	predictionTime := time.Now().UTC()
	if request.PredictionTime != nil {
		predictionTime = request.PredictionTime.UTC()
	}

	prediction := models.Prediction{
		CryptocurrencyID: crypto.ID,
		ModelVersionID:   mv.ID,
		Timestamp:        request.Timestamp.UTC(),
		PredictionTime:   predictionTime,
		Horizon:          strings.ToLower(request.Horizon),
		PredictedPrice:   request.PredictedPrice,
		ConfidenceUpper:  request.ConfidenceUpper,
		ConfidenceLower:  request.ConfidenceLower,
		Metrics:          request.Metrics,
	}

	if err := cc.db.Create(&prediction).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create prediction"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": prediction})
}
