package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSeriesWindowDays = 90
	MaxSeriesWindowDays     = 365

	secondsPerDay = 24 * 60 * 60
)

type Tally struct {
	StatementID uuid.UUID       `json:"statement_id"`
	Counts      map[Value]int64 `json:"counts"`
	Total       int64           `json:"total"`
}

// NewTally returns an empty tally with every supported value present.
func NewTally(statementID uuid.UUID) Tally {
	counts := make(map[Value]int64, len(Values))
	for _, v := range Values {
		counts[v] = 0
	}
	return Tally{StatementID: statementID, Counts: counts}
}

func (t *Tally) Add(v Value, n int64) {
	if t.Counts == nil {
		t.Counts = make(map[Value]int64)
	}
	t.Counts[v] += n
	t.Total += n
}

type DailyBucket struct {
	StatementID uuid.UUID       `json:"statement_id"`
	Day         time.Time       `json:"day"`
	Counts      map[Value]int64 `json:"counts"`
	Total       int64           `json:"total"`
}

// EpochDay floors t to whole days since the Unix epoch in UTC.
func EpochDay(t time.Time) int64 {
	s := t.Unix()
	d := s / secondsPerDay
	if s%secondsPerDay < 0 {
		d--
	}
	return d
}

// DayStart returns the UTC instant at which epoch day d begins.
func DayStart(d int64) time.Time {
	return time.Unix(d*secondsPerDay, 0).UTC()
}

// SeriesWindowStart is the first instant included in a trailing window of
// windowDays ending on the epoch day containing now.
func SeriesWindowStart(now time.Time, windowDays int) time.Time {
	return DayStart(EpochDay(now) - int64(windowDays) + 1)
}
