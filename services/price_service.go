package services

import (
	"errors"
	"fmt"
	"time"

	"cryptovision_backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxQuerySpanDays limits how much history a single query may cover
const MaxQuerySpanDays = 365

var (
	ErrInvalidInterval = errors.New("invalid interval")
	ErrSpanTooLarge    = fmt.Errorf("date range cannot exceed %d days", MaxQuerySpanDays)
)

// bucketIntervals maps the enumerated interval names to their durations and
// the matching PostgreSQL INTERVAL literal. Only names in this map are ever
// interpolated into SQL.
var bucketIntervals = map[string]struct {
	duration time.Duration
	sql      string
}{
	"1m":  {time.Minute, "1 minute"},
	"5m":  {5 * time.Minute, "5 minutes"},
	"15m": {15 * time.Minute, "15 minutes"},
	"1h":  {time.Hour, "1 hour"},
	"4h":  {4 * time.Hour, "4 hours"},
	"1d":  {24 * time.Hour, "1 day"},
	"1w":  {7 * 24 * time.Hour, "1 week"},
}

// bucketOrigin matches the origin TimescaleDB's time_bucket aligns to, so
// both bucketing paths stamp identical boundaries.
var bucketOrigin = time.Date(2000, 1, 3, 0, 0, 0, 0, time.UTC)

// alignBucket floors t to the bucket boundary for the given width
func alignBucket(t time.Time, width time.Duration) time.Time {
	offset := t.Sub(bucketOrigin)
	offset -= ((offset % width) + width) % width
	return bucketOrigin.Add(offset)
}

// Candle is one time-bucketed OHLCV aggregate
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceService answers historical price queries
type PriceService struct {
	db           *gorm.DB
	useTimescale bool
}

// NewPriceService creates a price service. When useTimescale is false the
// bucketing and gap-fill run in process instead of in the database.
func NewPriceService(db *gorm.DB, useTimescale bool) *PriceService {
	return &PriceService{db: db, useTimescale: useTimescale}
}

// ValidateRange checks the interval name and the [start,end] span. Returns
// the effective end time (defaulting to now).
func ValidateRange(start time.Time, end *time.Time, interval string) (time.Time, error) {
	if _, ok := bucketIntervals[interval]; !ok {
		return time.Time{}, ErrInvalidInterval
	}
	effectiveEnd := time.Now().UTC()
	if end != nil {
		effectiveEnd = *end
	}
	if effectiveEnd.Sub(start) > MaxQuerySpanDays*24*time.Hour {
		return time.Time{}, ErrSpanTooLarge
	}
	return effectiveEnd, nil
}

// GetHistoricalData returns one OHLCV candle per bucket boundary covering
// [start,end], gaps filled by carrying the last close forward.
func (s *PriceService) GetHistoricalData(cryptocurrencyID string, start time.Time, end *time.Time, interval string) ([]Candle, error) {
	effectiveEnd, err := ValidateRange(start, end, interval)
	if err != nil {
		return nil, err
	}

	if s.useTimescale {
		return s.bucketInDatabase(cryptocurrencyID, start, effectiveEnd, interval)
	}
	return s.bucketInProcess(cryptocurrencyID, start, effectiveEnd, interval)
}

// GetLatest returns the most recent candle for a cryptocurrency
func (s *PriceService) GetLatest(cryptocurrencyID string) (*models.PriceHistory, error) {
	var row models.PriceHistory
	err := s.db.Where("cryptocurrency_id = ?", cryptocurrencyID).
		Order("timestamp DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Insert persists a batch of candles. Rows are immutable once written.
func (s *PriceService) Insert(rows []models.PriceHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// bucketRow scans the gapfill query; aggregate columns are NULL for buckets
// with no underlying rows.
type bucketRow struct {
	Bucket time.Time
	Open   *decimal.Decimal
	High   *decimal.Decimal
	Low    *decimal.Decimal
	Close  *decimal.Decimal
	Volume *decimal.Decimal
}

// bucketInDatabase delegates bucketing and gap-fill to TimescaleDB
func (s *PriceService) bucketInDatabase(cryptocurrencyID string, start, end time.Time, interval string) ([]Candle, error) {
	spec := bucketIntervals[interval]

	// interval literal comes from the validated whitelist above
	query := fmt.Sprintf(`
		SELECT
			time_bucket_gapfill(INTERVAL '%s', timestamp, start => ?, finish => ?) AS bucket,
			first(open, timestamp) AS open,
			max(high) AS high,
			min(low) AS low,
			locf(last(close, timestamp)) AS close,
			sum(volume) AS volume
		FROM price_histories
		WHERE cryptocurrency_id = ?
			AND timestamp >= ?
			AND timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket`, spec.sql)

	var rows []bucketRow
	if err := s.db.Raw(query, start, end, cryptocurrencyID, start, end).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("time bucket query failed: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if row.Close == nil {
			// nothing observed yet and nothing to carry forward
			continue
		}
		candle := Candle{Timestamp: row.Bucket, Close: *row.Close}
		// empty buckets carry the filled close into the price columns
		candle.Open = carried(row.Open, *row.Close)
		candle.High = carried(row.High, *row.Close)
		candle.Low = carried(row.Low, *row.Close)
		if row.Volume != nil {
			candle.Volume = *row.Volume
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func carried(observed *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if observed != nil {
		return *observed
	}
	return fallback
}

// bucketInProcess fetches the raw rows and performs the same bucketing and
// carry-forward gap-fill in Go, for deployments without the time-series
// extension.
func (s *PriceService) bucketInProcess(cryptocurrencyID string, start, end time.Time, interval string) ([]Candle, error) {
	spec := bucketIntervals[interval]

	var rows []models.PriceHistory
	err := s.db.Where("cryptocurrency_id = ? AND timestamp >= ? AND timestamp <= ?", cryptocurrencyID, start, end).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0)
	next := 0
	var lastClose *decimal.Decimal

	// buckets are stamped on interval boundaries, not on the query start
	for bucket := alignBucket(start, spec.duration); !bucket.After(end); bucket = bucket.Add(spec.duration) {
		bucketEnd := bucket.Add(spec.duration)

		var candle *Candle
		for next < len(rows) && rows[next].Timestamp.Before(bucketEnd) {
			row := rows[next]
			next++
			if candle == nil {
				candle = &Candle{
					Timestamp: bucket,
					Open:      row.Open,
					High:      row.High,
					Low:       row.Low,
					Close:     row.Close,
					Volume:    row.Volume,
				}
				continue
			}
			if row.High.GreaterThan(candle.High) {
				candle.High = row.High
			}
			if row.Low.LessThan(candle.Low) {
				candle.Low = row.Low
			}
			candle.Close = row.Close
			candle.Volume = candle.Volume.Add(row.Volume)
		}

		if candle == nil {
			if lastClose == nil {
				// leading gap with nothing to carry
				continue
			}
			candle = &Candle{
				Timestamp: bucket,
				Open:      *lastClose,
				High:      *lastClose,
				Low:       *lastClose,
				Close:     *lastClose,
				Volume:    decimal.Zero,
			}
		}

		closeCopy := candle.Close
		lastClose = &closeCopy
		candles = append(candles, *candle)
	}

	return candles, nil
}
