package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cryptovision_backend/models"
	"cryptovision_backend/services"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newFeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateAlertModels(db))
	return db
}

func TestConsumeReportsDialFailure(t *testing.T) {
	consumer := NewConsumer("ws://127.0.0.1:1", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connected, err := consumer.consume(ctx)
	assert.False(t, connected)
	assert.Error(t, err)
}

func TestConsumeEvaluatesAlertsPerTick(t *testing.T) {
	db := newFeedTestDB(t)

	user := &models.User{Email: "feed@example.com", Username: "feed", IsActive: true}
	require.NoError(t, user.SetPassword("testpassword"))
	require.NoError(t, db.Create(user).Error)

	alert := &models.Alert{
		UserID:      user.ID,
		Name:        "btc breakout",
		Symbol:      "BTC/USDT",
		Condition:   models.ConditionGreaterThan,
		TargetPrice: decimal.NewFromInt(100),
		Status:      models.AlertStatusActive,
	}
	require.NoError(t, db.Create(alert).Error)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		payload := `{"symbol":"BTC/USDT","price":"101","volume":"2","timestamp":1717243200000}`
		conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}))
	defer server.Close()

	alerts := services.NewAlertService(db, nil)
	consumer := NewConsumer("ws"+strings.TrimPrefix(server.URL, "http"), alerts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connected, err := consumer.consume(ctx)
	assert.True(t, connected)
	// the session ends when the server hangs up
	assert.Error(t, err)

	var stored models.Alert
	require.NoError(t, db.First(&stored, "id = ?", alert.ID).Error)
	assert.Equal(t, models.AlertStatusTriggered, stored.Status)
	assert.NotNil(t, stored.TriggeredAt)
}
