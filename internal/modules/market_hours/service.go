package market_hours

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MarketHoursService checks the session for one exchange
type MarketHoursService struct {
	session Session
	mu      sync.Mutex
	cache   map[int]map[string]bool // year -> yyyy-mm-dd holidays
	log     zerolog.Logger
}

// NewMarketHoursService creates a new market hours service
func NewMarketHoursService(session Session, log zerolog.Logger) *MarketHoursService {
	return &MarketHoursService{
		session: session,
		cache:   make(map[int]map[string]bool),
		log:     log.With().Str("service", "market_hours").Str("exchange", session.Code).Logger(),
	}
}

// IsMarketOpen reports whether t falls inside a regular session
func (s *MarketHoursService) IsMarketOpen(t time.Time) bool {
	local := t.In(s.session.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if s.IsHoliday(local) {
		return false
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.session.Timezone)
	open := midnight.Add(s.session.Open)
	closing := midnight.Add(s.session.Close)
	if s.session.EarlyFunc != nil && s.session.EarlyFunc(local) {
		closing = midnight.Add(s.session.EarlyClose)
	}

	return !local.Before(open) && local.Before(closing)
}

// IsHoliday reports whether the exchange-local date of t is a full-day holiday
func (s *MarketHoursService) IsHoliday(t time.Time) bool {
	local := t.In(s.session.Timezone)
	return s.holidays(local.Year())[local.Format("2006-01-02")]
}

// NextOpen returns the first session open strictly after t
func (s *MarketHoursService) NextOpen(t time.Time) time.Time {
	local := t.In(s.session.Timezone)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.session.Timezone)
	for i := 0; i < 14; i++ {
		open := day.AddDate(0, 0, i).Add(s.session.Open)
		if open.After(local) && s.IsMarketOpen(open) {
			return open
		}
	}
	s.log.Warn().Time("from", t).Msg("No session open found within two weeks")
	return day.AddDate(0, 0, 14).Add(s.session.Open)
}

func (s *MarketHoursService) holidays(year int) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.cache[year]; ok {
		return h
	}
	h := make(map[string]bool)
	if s.session.HolidayFunc != nil {
		for _, d := range s.session.HolidayFunc(year) {
			h[d.Format("2006-01-02")] = true
		}
	}
	s.cache[year] = h
	return h
}

// AlwaysOpen is a clock for simulations that ignore the session
type AlwaysOpen struct{}

// IsMarketOpen always returns true
func (AlwaysOpen) IsMarketOpen(time.Time) bool { return true }
