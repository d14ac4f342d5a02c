package services

import (
	"log"
	"strings"
	"time"

	"cryptovision_backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertService evaluates price alerts. It holds no polling or scheduling
// logic; the market-data feed and the scheduler drive it.
type AlertService struct {
	db      *gorm.DB
	archive *ArchiveService
}

// NewAlertService creates an alert service. archive may be nil.
func NewAlertService(db *gorm.DB, archive *ArchiveService) *AlertService {
	return &AlertService{db: db, archive: archive}
}

// ActiveAlertsForUser returns the user's alerts that are still eligible for
// evaluation: status active and not past expiry. An alert whose expires_at
// has passed is excluded even if its status column still reads active.
func (s *AlertService) ActiveAlertsForUser(userID string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.
		Where("user_id = ? AND status = ?", userID, models.AlertStatusActive).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

// CheckPrice evaluates all eligible alerts for a symbol against the current
// price, marks the matches triggered in a single batch and returns them.
func (s *AlertService) CheckPrice(symbol string, currentPrice decimal.Decimal) ([]models.Alert, error) {
	now := time.Now().UTC()

	var candidates []models.Alert
	err := s.db.
		Where("symbol = ? AND status = ?", strings.ToUpper(symbol), models.AlertStatusActive).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	triggered := make([]models.Alert, 0)
	ids := make([]string, 0)
	for _, alert := range candidates {
		if alert.Condition.Compare(currentPrice, alert.TargetPrice) {
			alert.Status = models.AlertStatusTriggered
			alert.TriggeredAt = &now
			triggered = append(triggered, alert)
			ids = append(ids, alert.ID)
		}
	}

	if len(ids) > 0 {
		err = s.db.Model(&models.Alert{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":       models.AlertStatusTriggered,
				"triggered_at": now,
			}).Error
		if err != nil {
			return nil, err
		}

		if s.archive != nil {
			// best effort, never blocks evaluation
			s.archive.RecordTriggered(triggered, currentPrice, now)
		}
	}

	return triggered, nil
}

// ExpireOverdue flips status to expired on active alerts whose expiry has
// passed. Complements the lazy filtering in the read paths.
func (s *AlertService) ExpireOverdue() (int64, error) {
	result := s.db.Model(&models.Alert{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.AlertStatusActive, time.Now().UTC()).
		Update("status", models.AlertStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Expired %d overdue alerts", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Cancel transitions an active alert to cancelled. Terminal states are left
// untouched.
func (s *AlertService) Cancel(alert *models.Alert) error {
	if alert.Status != models.AlertStatusActive {
		return nil
	}
	alert.Status = models.AlertStatusCancelled
	return s.db.Model(alert).Update("status", models.AlertStatusCancelled).Error
}
