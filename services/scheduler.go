// services/scheduler.go
package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpirySweep expires stale pending validations on a fixed
// interval. No dedicated scheduler process; the sweep piggybacks on
// the service lifetime and is safe to run alongside opportunistic
// expiry from request paths.
func (s *PeerValidationService) StartExpirySweep(interval, ttl time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.ExpireStale(ttl); err != nil {
				s.Log.WithError(err).Error("validation expiry sweep failed")
			}
		}),
	)
}
