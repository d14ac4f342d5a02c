package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusCancelled AlertStatus = "cancelled"
	AlertStatusExpired   AlertStatus = "expired"
)

// String returns the string representation of AlertStatus
func (s AlertStatus) String() string {
	return string(s)
}

// AlertCondition represents comparison operators for price alerts
type AlertCondition string

const (
	ConditionGreaterThan      AlertCondition = ">"
	ConditionGreaterThanEqual AlertCondition = ">="
	ConditionLessThan         AlertCondition = "<"
	ConditionLessThanEqual    AlertCondition = "<="
	ConditionEqual            AlertCondition = "=="
	ConditionNotEqual         AlertCondition = "!="
)

// String returns the string representation of AlertCondition
func (c AlertCondition) String() string {
	return string(c)
}

// ValidAlertConditions returns the closed set of supported operators
func ValidAlertConditions() []AlertCondition {
	return []AlertCondition{
		ConditionGreaterThan,
		ConditionGreaterThanEqual,
		ConditionLessThan,
		ConditionLessThanEqual,
		ConditionEqual,
		ConditionNotEqual,
	}
}

// IsValidAlertCondition checks if the operator is in the supported set
func IsValidAlertCondition(c AlertCondition) bool {
	for _, valid := range ValidAlertConditions() {
		if c == valid {
			return true
		}
	}
	return false
}

// Compare applies the operator to (current, target) using standard numeric
// comparison
func (c AlertCondition) Compare(current, target decimal.Decimal) bool {
	switch c {
	case ConditionGreaterThan:
		return current.GreaterThan(target)
	case ConditionGreaterThanEqual:
		return current.GreaterThanOrEqual(target)
	case ConditionLessThan:
		return current.LessThan(target)
	case ConditionLessThanEqual:
		return current.LessThanOrEqual(target)
	case ConditionEqual:
		return current.Equal(target)
	case ConditionNotEqual:
		return !current.Equal(target)
	}
	return false
}

// Alert is a user-owned price rule on a symbol. Status transitions:
// active -> triggered (condition met), active -> expired (past expiry),
// active -> cancelled (user action). Triggered, expired and cancelled are
// terminal for evaluation.
type Alert struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	User        *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `json:"description"`
	Symbol      string          `gorm:"size:20;not null;index" json:"symbol"` // stored uppercased
	Condition   AlertCondition  `gorm:"size:4;not null" json:"condition"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"target_price"`
	Status      AlertStatus     `gorm:"size:16;default:'active';not null;index" json:"status"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	TriggeredAt *time.Time      `json:"triggered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the alert's expiry has passed. Alerts without
// an expiry never expire.
func (a *Alert) IsExpired(now time.Time) bool {
	if a.ExpiresAt == nil {
		return false
	}
	return now.After(*a.ExpiresAt)
}

// MigrateAlertModels runs database migrations for alert models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&Alert{})
}
