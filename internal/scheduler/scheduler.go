// Package scheduler evaluates time-window schedule rules at a fixed
// cadence and applies the winning rule's action to the rate limiter or
// the queue pause state.
package scheduler

import (
	"context"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
)

// TickInterval is the minimum evaluation cadence; schedule windows are
// specified in whole minutes so finer granularity buys nothing.
const TickInterval = time.Minute

// QueueController is the subset of Supervisor behavior the Scheduler can
// drive: pausing and resuming dispatch.
type QueueController interface {
	PauseQueue()
	ResumeQueue()
}

// Scheduler owns no mutable rule state beyond the rules themselves, which
// are read-only after construction; config changes require a restart.
type Scheduler struct {
	rules   []config.ScheduleRule
	limiter *ratelimiter.Limiter
	queue   QueueController

	defaultLimitBps uint64

	// active tracks which rule (by index into rules) most recently won
	// evaluation, so a steady-state tick that re-selects the same rule
	// does not reapply its action every minute.
	active int
	paused bool
}

// New builds a Scheduler. defaultLimitBps is the limit restored when no
// rule is currently active.
func New(rules []config.ScheduleRule, limiter *ratelimiter.Limiter, queue QueueController, defaultLimitBps uint64) *Scheduler {
	return &Scheduler{
		rules:           rules,
		limiter:         limiter,
		queue:           queue,
		defaultLimitBps: defaultLimitBps,
		active:          -2, // nothing applied yet; -1 means no rule matched
	}
}

// Run evaluates rules every TickInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.evaluate(time.Now())

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evaluate(now)
		}
	}
}

// evaluate selects the most recently transitioned active rule (the
// matching rule with the latest start time today, including overnight
// windows that started yesterday) and applies its action if it differs
// from the currently active one.
func (s *Scheduler) evaluate(now time.Time) {
	idx, rule := s.selectActive(now)

	if idx == s.active {
		return
	}
	s.active = idx

	if idx < 0 {
		s.applyDefault()
		return
	}

	s.applyAction(rule)
}

func (s *Scheduler) selectActive(now time.Time) (int, config.ScheduleRule) {
	best := -1
	var bestStart time.Time
	var bestRule config.ScheduleRule

	for i, r := range s.rules {
		if !r.Enabled {
			continue
		}
		if !dayMatches(r.Days, now) {
			continue
		}
		matches, startedAt := windowMatches(r.StartTime, r.EndTime, now)
		if !matches {
			continue
		}
		if best < 0 || startedAt.After(bestStart) {
			best = i
			bestStart = startedAt
			bestRule = r
		}
	}

	return best, bestRule
}

func (s *Scheduler) applyAction(r config.ScheduleRule) {
	switch r.Action {
	case "speed_limit":
		s.limiter.SetLimit(uint64(r.LimitBps), 0)
		s.resumeIfPaused()
	case "unlimited":
		s.limiter.SetLimit(0, 0)
		s.resumeIfPaused()
	case "pause":
		if s.queue != nil && !s.paused {
			s.queue.PauseQueue()
			s.paused = true
		}
	}
}

func (s *Scheduler) applyDefault() {
	s.limiter.SetLimit(s.defaultLimitBps, 0)
	s.resumeIfPaused()
}

func (s *Scheduler) resumeIfPaused() {
	if s.queue != nil && s.paused {
		s.queue.ResumeQueue()
		s.paused = false
	}
}

func dayMatches(days []string, now time.Time) bool {
	if len(days) == 0 {
		return true
	}
	today := now.Weekday().String()
	for _, d := range days {
		if equalFold(d, today) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// windowMatches reports whether now falls within [start, end) on the
// local clock, handling an overnight window where end <= start by
// checking both "started today" and "started yesterday, still running"
// cases. It also returns the instant the matching window started, used
// to break ties between multiple matching rules.
func windowMatches(startStr, endStr string, now time.Time) (bool, time.Time) {
	start, ok1 := parseClock(startStr)
	end, ok2 := parseClock(endStr)
	if !ok1 || !ok2 {
		return false, time.Time{}
	}

	todayStart := dateAt(now, start)
	overnight := !end.After(start)

	if !overnight {
		todayEnd := dateAt(now, end)
		if !now.Before(todayStart) && now.Before(todayEnd) {
			return true, todayStart
		}
		return false, time.Time{}
	}

	// Overnight window: either it started today and hasn't wrapped past
	// midnight into tomorrow's end yet, or it started yesterday and is
	// still running into today.
	todayEnd := dateAt(now.AddDate(0, 0, 1), end)
	if !now.Before(todayStart) && now.Before(todayEnd) {
		return true, todayStart
	}

	yesterdayStart := dateAt(now.AddDate(0, 0, -1), start)
	if !now.Before(yesterdayStart) && now.Before(dateAt(now, end)) {
		return true, yesterdayStart
	}

	return false, time.Time{}
}

type clock struct {
	hour, minute int
}

func (c clock) After(o clock) bool {
	return c.hour > o.hour || (c.hour == o.hour && c.minute > o.minute)
}

func parseClock(s string) (clock, bool) {
	if len(s) != 5 || s[2] != ':' {
		return clock{}, false
	}
	h, ok1 := parseTwoDigits(s[0:2])
	m, ok2 := parseTwoDigits(s[3:5])
	if !ok1 || !ok2 || h > 23 || m > 59 {
		return clock{}, false
	}
	return clock{hour: h, minute: m}, true
}

func parseTwoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func dateAt(t time.Time, c clock) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.hour, c.minute, 0, 0, t.Location())
}
