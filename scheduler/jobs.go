package scheduler

// Package scheduler runs the periodic maintenance jobs around alert
// evaluation and storage:
// - marking overdue active alerts expired
// - pruning the local tick archive
// - pruning price rows past the retention window

import (
	"log"
	"time"

	"cryptovision_backend/models"
	"cryptovision_backend/services"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron          *gocron.Scheduler
	db            *gorm.DB
	alerts        *services.AlertService
	ticks         *services.TickStore
	retentionDays int
}

// NewScheduler creates a new scheduler instance. ticks may be nil.
func NewScheduler(db *gorm.DB, alerts *services.AlertService, ticks *services.TickStore, retentionDays int) *Scheduler {
	return &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		db:            db,
		alerts:        alerts,
		ticks:         ticks,
		retentionDays: retentionDays,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Sweep overdue alerts every minute
	s.cron.Every(1).Minute().Do(func() {
		if _, err := s.alerts.ExpireOverdue(); err != nil {
			log.Printf("Error expiring alerts: %v", err)
		}
	})

	// Prune archives daily at 02:00 UTC
	s.cron.Every(1).Day().At("02:00").Do(s.pruneOldData)

	s.cron.StartBlocking()
}

// Stop stops all scheduled jobs
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	s.cron.Stop()
}

// pruneOldData removes data past the retention window
func (s *Scheduler) pruneOldData() {
	log.Println("Pruning old data...")

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	if err := s.db.Where("timestamp < ?", cutoff).Delete(&models.PriceHistory{}).Error; err != nil {
		log.Printf("Error pruning old price rows: %v", err)
	}

	if s.ticks != nil {
		// raw ticks only matter for recent diagnostics
		tickCutoff := time.Now().AddDate(0, 0, -7)
		if removed, err := s.ticks.PruneOlderThan(tickCutoff); err != nil {
			log.Printf("Error pruning tick archive: %v", err)
		} else if removed > 0 {
			log.Printf("Pruned %d archived ticks", removed)
		}
	}

	log.Println("Prune completed")
}
