package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
)

type fakeQueueController struct {
	paused  bool
	pauses  int
	resumes int
}

func (f *fakeQueueController) PauseQueue()  { f.paused = true; f.pauses++ }
func (f *fakeQueueController) ResumeQueue() { f.paused = false; f.resumes++ }

func TestWindowMatchesSimpleDaytimeWindow(t *testing.T) {
	now := time.Date(2026, 8, 6, 14, 0, 0, 0, time.UTC)
	matches, _ := windowMatches("09:00", "17:00", now)
	assert.True(t, matches)

	now = time.Date(2026, 8, 6, 20, 0, 0, 0, time.UTC)
	matches, _ = windowMatches("09:00", "17:00", now)
	assert.False(t, matches)
}

func TestWindowMatchesOvernightWindow(t *testing.T) {
	// 23:00 -> 06:00 spans midnight.
	now := time.Date(2026, 8, 6, 23, 30, 0, 0, time.UTC)
	matches, _ := windowMatches("23:00", "06:00", now)
	assert.True(t, matches)

	now = time.Date(2026, 8, 6, 2, 0, 0, 0, time.UTC)
	matches, _ = windowMatches("23:00", "06:00", now)
	assert.True(t, matches)

	now = time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	matches, _ = windowMatches("23:00", "06:00", now)
	assert.False(t, matches)
}

func TestDayMatchesEmptyMeansAllDays(t *testing.T) {
	assert.True(t, dayMatches(nil, time.Now()))
	assert.True(t, dayMatches([]string{}, time.Now()))
}

func TestDayMatchesSpecificDay(t *testing.T) {
	thursday := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "Thursday", thursday.Weekday().String())
	assert.True(t, dayMatches([]string{"thursday"}, thursday))
	assert.False(t, dayMatches([]string{"friday"}, thursday))
}

func TestEvaluateAppliesSpeedLimitRule(t *testing.T) {
	lim := ratelimiter.New(0, 0)
	rules := []config.ScheduleRule{
		{Name: "night", Enabled: true, StartTime: "00:00", EndTime: "23:59", Action: "speed_limit", LimitBps: 1000},
	}
	s := New(rules, lim, nil, 5000)

	s.evaluate(time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, uint64(1000), lim.Limit())
}

func TestEvaluateFallsBackToDefaultWhenNoRuleMatches(t *testing.T) {
	lim := ratelimiter.New(0, 0)
	rules := []config.ScheduleRule{
		{Name: "night", Enabled: true, StartTime: "01:00", EndTime: "02:00", Action: "speed_limit", LimitBps: 1000},
	}
	s := New(rules, lim, nil, 5000)

	s.evaluate(time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, uint64(5000), lim.Limit())
}

func TestEvaluatePausesAndResumesQueue(t *testing.T) {
	lim := ratelimiter.New(0, 0)
	q := &fakeQueueController{}
	rules := []config.ScheduleRule{
		{Name: "quiet", Enabled: true, StartTime: "01:00", EndTime: "02:00", Action: "pause"},
	}
	s := New(rules, lim, q, 5000)

	s.evaluate(time.Date(2026, 8, 6, 1, 30, 0, 0, time.UTC))
	assert.True(t, q.paused)

	s.evaluate(time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC))
	assert.False(t, q.paused)
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	lim := ratelimiter.New(0, 0)
	rules := []config.ScheduleRule{
		{Name: "night", Enabled: false, StartTime: "00:00", EndTime: "23:59", Action: "speed_limit", LimitBps: 1000},
	}
	s := New(rules, lim, nil, 5000)

	s.evaluate(time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, uint64(5000), lim.Limit())
}
