package models

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cryptocurrency represents a tradable symbol/name pair
type Cryptocurrency struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"` // e.g. "BTC/USDT"
	Name      string    `gorm:"not null" json:"name"`               // e.g. "Bitcoin"
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cryptocurrency) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// PriceHistory is one OHLCV candle for a cryptocurrency at a timestamp.
// The composite primary key (id, cryptocurrency_id, timestamp) supports
// time-partitioned storage. Rows are immutable once written.
type PriceHistory struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"id"`
	CryptocurrencyID string          `gorm:"type:uuid;primaryKey;index:idx_price_crypto_ts" json:"cryptocurrency_id"`
	Timestamp        time.Time       `gorm:"primaryKey;index:idx_price_crypto_ts" json:"timestamp"`
	Open             decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"open"`
	High             decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"high"`
	Low              decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"low"`
	Close            decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"close"`
	Volume           decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"volume"`
}

func (p *PriceHistory) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ModelVersion is a named, semantically-versioned prediction model artifact.
// At most one version per name may hold the production flag; the transition
// is an explicit unset-then-set transaction, not a database constraint.
type ModelVersion struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"not null;index:idx_model_name_version,unique" json:"name"`
	Version      string    `gorm:"not null;index:idx_model_name_version,unique" json:"version"` // MAJOR.MINOR.PATCH
	Path         string    `gorm:"not null" json:"path"`
	Metrics      string    `gorm:"type:jsonb" json:"metrics"` // MAE, RMSE, etc.
	IsProduction bool      `gorm:"default:false" json:"is_production"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Prediction is a forecast for a cryptocurrency/model-version pair at a
// horizon and target time. Immutable once written.
type Prediction struct {
	ID               string           `gorm:"type:uuid;primaryKey" json:"id"`
	CryptocurrencyID string           `gorm:"type:uuid;primaryKey;index:idx_pred_crypto_ts" json:"cryptocurrency_id"`
	Timestamp        time.Time        `gorm:"primaryKey;index:idx_pred_crypto_ts" json:"timestamp"`
	ModelVersionID   string           `gorm:"type:uuid;not null;index" json:"model_version_id"`
	PredictionTime   time.Time        `gorm:"not null" json:"prediction_time"` // when the prediction was made
	Horizon          string           `gorm:"not null;index" json:"horizon"`   // e.g. "1h", "24h", "7d"
	PredictedPrice   decimal.Decimal  `gorm:"type:decimal(24,8);not null" json:"predicted_price"`
	ConfidenceUpper  *decimal.Decimal `gorm:"type:decimal(24,8)" json:"confidence_upper"`
	ConfidenceLower  *decimal.Decimal `gorm:"type:decimal(24,8)" json:"confidence_lower"`
	Metrics          string           `gorm:"type:jsonb" json:"metrics"`
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// MigrateCryptoModels runs database migrations for market data models
func MigrateCryptoModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Cryptocurrency{},
		&PriceHistory{},
		&ModelVersion{},
		&Prediction{},
	)
	if err != nil {
		return err
	}

	// at most one production version per model name, enforced by the
	// database itself
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_model_versions_production_name
		 ON model_versions(name) WHERE is_production`,
	).Error
}

// SetupHypertables converts the time-series tables into TimescaleDB
// hypertables and optionally enables compression. Errors are logged and
// swallowed so the service still starts against a plain PostgreSQL.
func SetupHypertables(db *gorm.DB, chunkInterval string, compression bool) {
	for _, table := range []string{"price_histories", "predictions"} {
		sql := fmt.Sprintf(
			`SELECT create_hypertable('%s', 'timestamp', if_not_exists => true, chunk_time_interval => INTERVAL '%s')`,
			table, chunkInterval,
		)
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("TimescaleDB hypertable setup failed for %s: %v", table, err)
			continue
		}

		if compression {
			alter := fmt.Sprintf(
				`ALTER TABLE %s SET (timescaledb.compress, timescaledb.compress_segmentby = 'cryptocurrency_id', timescaledb.compress_orderby = 'timestamp DESC')`,
				table,
			)
			if err := db.Exec(alter).Error; err != nil {
				log.Printf("TimescaleDB compression setup failed for %s: %v", table, err)
				continue
			}
			policy := fmt.Sprintf(
				`SELECT add_compression_policy('%s', compress_after => INTERVAL '%s', if_not_exists => true)`,
				table, chunkInterval,
			)
			if err := db.Exec(policy).Error; err != nil {
				log.Printf("TimescaleDB compression policy failed for %s: %v", table, err)
			}
		}
	}
}
