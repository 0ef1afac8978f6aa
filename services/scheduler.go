// services/scheduler.go
package services

import (
	"log"
	"time"

	"race-results-system/repository"

	"github.com/go-co-op/gocron/v2"
)

// StartConsistencySweeper runs a periodic safety net behind the
// transactional recompute: every interval, team aggregates of races with
// recently-changed individual results are rebuilt. Recomputation is
// idempotent, so sweeping a race that is already consistent is a no-op.
func (s *ResultsService) StartConsistencySweeper(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			since := time.Now().Add(-2 * interval)
			raceIDs, err := s.Store.Results().RaceIDsWithResultsSince(since)
			if err != nil {
				log.Printf("[Sweeper] DB error: %v", err)
				return
			}
			for _, raceID := range raceIDs {
				err := s.Store.Transaction(func(tx repository.Store) error {
					return s.RecalculateTeamAverages(tx, raceID)
				})
				if err != nil {
					log.Printf("[Sweeper] Failed to recompute race %d: %v", raceID, err)
				}
			}
			if len(raceIDs) > 0 {
				log.Printf("[Sweeper] Recomputed team averages for %d race(s)", len(raceIDs))
			}
		}),
	)
}
