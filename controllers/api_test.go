package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cryptovision_backend/middleware"
	"cryptovision_backend/models"
	"cryptovision_backend/routes"
	"cryptovision_backend/security"
	"cryptovision_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *security.TokenMaker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateCryptoModels(db))
	require.NoError(t, models.MigrateAlertModels(db))

	tokens := security.NewTokenMaker("test-secret", time.Hour, 24*time.Hour)

	router := gin.New()
	// symbols like BTC/USDT arrive percent-encoded in path params
	router.UseRawPath = true
	routes.SetupRoutes(router, routes.Deps{
		DB:      db,
		Tokens:  tokens,
		Limiter: middleware.NewLoginRateLimiter(100, time.Minute, time.Minute),
		Prices:  services.NewPriceService(db, false),
		Alerts:  services.NewAlertService(db, nil),
		Models:  services.NewModelService(db),
	})

	return &testEnv{router: router, db: db, tokens: tokens}
}

func (e *testEnv) createUser(t *testing.T, email string, superuser bool) *models.User {
	t.Helper()
	user := &models.User{
		Email:       email,
		Username:    email,
		IsActive:    true,
		IsSuperuser: superuser,
	}
	require.NoError(t, user.SetPassword("testpassword"))
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := e.tokens.CreateAccessToken(user.ID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body.Data
}

func TestLoginAndTokenRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", false)

	recorder := env.request(t, http.MethodPost, "/api/v1/auth/login/access-token", gin.H{
		"email":    "user@example.com",
		"password": "testpassword",
	}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	recorder = env.request(t, http.MethodPost, "/api/v1/auth/refresh-token", gin.H{
		"refresh_token": pair.RefreshToken,
	}, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// An access token presented as a refresh token is rejected
	recorder = env.request(t, http.MethodPost, "/api/v1/auth/refresh-token", gin.H{
		"refresh_token": pair.AccessToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user@example.com", false)

	recorder := env.request(t, http.MethodPost, "/api/v1/auth/login/access-token", gin.H{
		"email":    "user@example.com",
		"password": "wrongpassword",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRegistrationConflicts(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.request(t, http.MethodPost, "/api/v1/users", gin.H{
		"email":    "taken@example.com",
		"username": "taken",
		"password": "testpassword",
	}, nil)
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Same email
	recorder = env.request(t, http.MethodPost, "/api/v1/users", gin.H{
		"email":    "taken@example.com",
		"username": "someone-else",
		"password": "testpassword",
	}, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "email")

	// Same username, different email
	recorder = env.request(t, http.MethodPost, "/api/v1/users", gin.H{
		"email":    "free@example.com",
		"username": "taken",
		"password": "testpassword",
	}, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "username")

	// The unique index maps to the duplicate-key sentinel for the insert
	// path a concurrent registration would hit
	dup := &models.User{Email: "taken@example.com", Username: "third", IsActive: true}
	require.NoError(t, dup.SetPassword("testpassword"))
	err := env.db.Create(dup).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestInactiveUserRejectedEverywhere(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "sleeper@example.com", false)
	require.NoError(t, env.db.Model(user).Update("is_active", false).Error)

	// Login with valid credentials fails
	recorder := env.request(t, http.MethodPost, "/api/v1/auth/login/access-token", gin.H{
		"email":    "sleeper@example.com",
		"password": "testpassword",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// A token minted before deactivation no longer works
	recorder = env.request(t, http.MethodGet, "/api/v1/users/me", nil, user)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestPartialUpdatePreservesOtherFields(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)
	originalHash := user.HashedPassword

	recorder := env.request(t, http.MethodPut, "/api/v1/users/me", gin.H{
		"full_name": "New Name",
	}, user)
	require.Equal(t, http.StatusOK, recorder.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, "New Name", stored.FullName)
	assert.Equal(t, "user@example.com", stored.Email)
	assert.Equal(t, originalHash, stored.HashedPassword)
}

func TestNonSuperuserCannotEscalate(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)

	recorder := env.request(t, http.MethodPut, "/api/v1/users/me", gin.H{
		"is_superuser": true,
	}, user)
	require.Equal(t, http.StatusOK, recorder.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
	assert.False(t, stored.IsSuperuser)
}

func TestUserCannotReadOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)
	other := env.createUser(t, "other@example.com", false)

	recorder := env.request(t, http.MethodGet, "/api/v1/users/"+other.ID, nil, user)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = env.request(t, http.MethodGet, "/api/v1/users", nil, user)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestDeleteUserCascadesAlerts(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", true)
	victim := env.createUser(t, "victim@example.com", false)

	recorder := env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "btc high",
		"symbol":       "BTC/USDT",
		"condition":    ">",
		"target_price": "100000",
	}, victim)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = env.request(t, http.MethodDelete, "/api/v1/users/"+victim.ID, nil, admin)
	require.Equal(t, http.StatusOK, recorder.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.Alert{}).Where("user_id = ?", victim.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSelfDeleteRejectedEvenForSuperuser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", true)

	recorder := env.request(t, http.MethodDelete, "/api/v1/users/"+admin.ID, nil, admin)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", admin.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCryptocurrencyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", true)

	recorder := env.request(t, http.MethodPost, "/api/v1/crypto/cryptocurrencies", gin.H{
		"symbol": "BTC/USDT",
		"name":   "Bitcoin",
	}, admin)
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeData(t, recorder)

	// Fetch by symbol returns the same record
	recorder = env.request(t, http.MethodGet, "/api/v1/crypto/cryptocurrencies/BTC%2FUSDT", nil, admin)
	require.Equal(t, http.StatusOK, recorder.Code)
	fetched := decodeData(t, recorder)
	assert.Equal(t, created["id"], fetched["id"])
	assert.Equal(t, "BTC/USDT", fetched["symbol"])

	// Duplicate symbol conflicts
	recorder = env.request(t, http.MethodPost, "/api/v1/crypto/cryptocurrencies", gin.H{
		"symbol": "BTC/USDT",
		"name":   "Bitcoin again",
	}, admin)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestPriceHistoryInvalidIntervalRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)

	recorder := env.request(t, http.MethodGet,
		"/api/v1/crypto/price-history?cryptocurrency_id=x&start_date=2025-01-01T00:00:00Z&interval=2h",
		nil, user)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPriceHistorySpanTooLargeRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)

	recorder := env.request(t, http.MethodGet,
		"/api/v1/crypto/price-history?cryptocurrency_id=x&start_date=2020-01-01T00:00:00Z&end_date=2022-01-01T00:00:00Z&interval=1d",
		nil, user)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateAlertValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)

	// Unknown operator
	recorder := env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "bad operator",
		"symbol":       "BTC/USDT",
		"condition":    "=",
		"target_price": "100",
	}, user)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Non-positive target
	recorder = env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "bad target",
		"symbol":       "BTC/USDT",
		"condition":    ">",
		"target_price": "0",
	}, user)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Symbol is stored uppercased
	recorder = env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "ok",
		"symbol":       "btc/usdt",
		"condition":    ">",
		"target_price": "100",
	}, user)
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeData(t, recorder)
	assert.Equal(t, "BTC/USDT", created["symbol"])
}

func TestAlertOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "owner@example.com", false)
	stranger := env.createUser(t, "stranger@example.com", false)
	admin := env.createUser(t, "admin@example.com", true)

	recorder := env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "mine",
		"symbol":       "BTC/USDT",
		"condition":    ">",
		"target_price": "100",
	}, owner)
	require.Equal(t, http.StatusCreated, recorder.Code)
	alertID := decodeData(t, recorder)["id"].(string)

	recorder = env.request(t, http.MethodGet, "/api/v1/alerts/"+alertID, nil, stranger)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = env.request(t, http.MethodGet, "/api/v1/alerts/"+alertID, nil, admin)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.request(t, http.MethodGet, "/api/v1/alerts/"+alertID, nil, owner)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestActiveAlertsExcludeExpired(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "user@example.com", false)

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	recorder := env.request(t, http.MethodPost, "/api/v1/alerts", gin.H{
		"name":         "live",
		"symbol":       "BTC/USDT",
		"condition":    ">",
		"target_price": "100",
		"expires_at":   future,
	}, user)
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Insert an already-overdue alert directly; creation would reject it
	past := time.Now().UTC().Add(-time.Hour)
	overdue := models.Alert{
		UserID:      user.ID,
		Name:        "overdue",
		Symbol:      "BTC/USDT",
		Condition:   models.ConditionGreaterThan,
		TargetPrice: decimal.NewFromInt(100),
		Status:      models.AlertStatusActive,
		ExpiresAt:   &past,
	}
	require.NoError(t, env.db.Create(&overdue).Error)

	recorder = env.request(t, http.MethodGet, "/api/v1/alerts/active", nil, user)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data []models.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "live", body.Data[0].Name)
}

func TestModelVersionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", true)

	recorder := env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":    "lstm-btc",
		"version": "1.0.0",
		"path":    "/models/lstm-btc/1.0.0",
	}, admin)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":    "lstm-btc",
		"version": "1.1.0",
		"path":    "/models/lstm-btc/1.1.0",
	}, admin)
	require.Equal(t, http.StatusCreated, recorder.Code)
	secondID := decodeData(t, recorder)["id"].(string)

	// Duplicate name+version conflicts
	recorder = env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":    "lstm-btc",
		"version": "1.0.0",
		"path":    "/elsewhere",
	}, admin)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// No production version yet
	recorder = env.request(t, http.MethodGet, "/api/v1/models/production/lstm-btc", nil, admin)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = env.request(t, http.MethodPost, "/api/v1/models/"+secondID+"/production", nil, admin)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.request(t, http.MethodGet, "/api/v1/models/production/lstm-btc", nil, admin)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, secondID, decodeData(t, recorder)["id"])
}

func TestCreateProductionVersionDemotesSibling(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", true)

	recorder := env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":          "lstm-btc",
		"version":       "1.0.0",
		"path":          "/models/lstm-btc/1.0.0",
		"is_production": true,
	}, admin)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":          "lstm-btc",
		"version":       "2.0.0",
		"path":          "/models/lstm-btc/2.0.0",
		"is_production": true,
	}, admin)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.ModelVersion{}).
		Where("name = ? AND is_production = ?", "lstm-btc", true).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	recorder = env.request(t, http.MethodGet, "/api/v1/models/production/lstm-btc", nil, admin)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "2.0.0", decodeData(t, recorder)["version"])
}

func TestAnalystRoleRequiredForModelWrites(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.createUser(t, "viewer@example.com", false)
	require.NoError(t, models.AddRole(env.db, viewer.ID, models.RoleViewer))

	recorder := env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":    "lstm-btc",
		"version": "1.0.0",
		"path":    "/models/lstm-btc/1.0.0",
	}, viewer)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	analyst := env.createUser(t, "analyst@example.com", false)
	require.NoError(t, models.AddRole(env.db, analyst.ID, models.RoleAnalyst))

	recorder = env.request(t, http.MethodPost, "/api/v1/models", gin.H{
		"name":    "lstm-btc",
		"version": "1.0.0",
		"path":    "/models/lstm-btc/1.0.0",
	}, analyst)
	assert.Equal(t, http.StatusCreated, recorder.Code)
}
