// Package scheduler runs the hourly digest delivery loop.
package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"digest_server/core/domain"
	"digest_server/core/port/out"
	"digest_server/core/service/digest"
	"digest_server/pkg/apperr"

	"github.com/rs/zerolog"
)

const (
	tickInterval = time.Hour

	// Due thresholds run one hour short of the nominal period so a digest
	// delivered at 09:04 yesterday is still due at 09:00 today.
	dailyDueHours    = 23
	weeklyDueHours   = 167
	biweeklyDueHours = 335
	monthlyDueHours  = 719
)

const defaultTimezone = "America/New_York"

// Scheduler checks due schedule preferences every hour and triggers digest
// generation for each.
type Scheduler struct {
	schedules out.ScheduleRepository
	service   *digest.Service
	interval  time.Duration
	clock     func() time.Time
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler. A zero interval falls back to the hourly default.
func New(schedules out.ScheduleRepository, service *digest.Service, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = tickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		schedules: schedules,
		service:   service,
		interval:  interval,
		clock:     time.Now,
		log:       log.With().Str("component", "scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the hourly loop.
func (s *Scheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	go s.run()
}

// Stop terminates the loop.
func (s *Scheduler) Stop() {
	s.log.Info().Msg("scheduler stopping")
	s.cancel()
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick processes every due schedule once. Failures of one schedule never
// block the rest.
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Minute)
	defer cancel()

	now := s.clock()

	schedules, err := s.schedules.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list active schedules")
		return
	}

	for _, pref := range schedules {
		if !s.shouldRun(pref, now) {
			continue
		}

		log := s.log.With().
			Stringer("user_id", pref.UserID).
			Str("frequency", string(pref.Frequency)).
			Logger()
		log.Info().Msg("generating scheduled digest")

		if _, err := s.service.GenerateDigest(ctx, pref.UserID, pref.Frequency); err != nil {
			// A concurrent manual generation counts as delivered.
			if !apperr.IsCode(err, apperr.CodeGenerationInProgress) {
				log.Error().Err(err).Msg("scheduled digest failed")
				continue
			}
		}

		if err := s.schedules.MarkSent(ctx, pref.ID, now); err != nil {
			log.Error().Err(err).Msg("failed to mark schedule sent")
		}
	}
}

func (s *Scheduler) shouldRun(pref *domain.SchedulePreference, now time.Time) bool {
	return hourInTimezone(now, pref.Timezone) == deliveryHour(pref.DeliveryTime) &&
		isDue(pref, now)
}

// isDue reports whether enough time has passed since the last delivery for
// the schedule's frequency. A schedule that never fired is always due.
func isDue(pref *domain.SchedulePreference, now time.Time) bool {
	if pref.LastSentAt == nil {
		return true
	}

	hoursSince := now.Sub(*pref.LastSentAt).Hours()
	switch pref.Frequency {
	case domain.FrequencyDaily:
		return hoursSince >= dailyDueHours
	case domain.FrequencyWeekly:
		return hoursSince >= weeklyDueHours
	case domain.FrequencyBiweekly:
		return hoursSince >= biweeklyDueHours
	case domain.FrequencyMonthly:
		return hoursSince >= monthlyDueHours
	default:
		return false
	}
}

// deliveryHour parses the hour out of an "HH:MM" delivery time.
func deliveryHour(deliveryTime string) int {
	hour, _, ok := strings.Cut(deliveryTime, ":")
	if !ok {
		hour = deliveryTime
	}
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	return h
}

// hourInTimezone returns the current hour in the given IANA timezone,
// falling back to the default zone when the name does not resolve.
func hourInTimezone(now time.Time, timezone string) int {
	if timezone == "" {
		timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, err = time.LoadLocation(defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	return now.In(loc).Hour()
}
