package domain

import "fmt"

// QuartersPerYear is the number of simulation steps in one year.
const QuartersPerYear = 4

// Period identifies one simulation quarter. All policy and event durations
// are expressed in quarters and compared in quarter-index space; calendar
// dates are never used, so there is no month-boundary arithmetic to get
// wrong.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"` // 0-based, 0..3
}

// Index converts the period to a monotonically increasing quarter index.
func (p Period) Index() int {
	return p.Year*QuartersPerYear + p.Quarter
}

// AddQuarters returns the period advanced by n quarters.
func (p Period) AddQuarters(n int) Period {
	idx := p.Index() + n
	return Period{Year: idx / QuartersPerYear, Quarter: idx % QuartersPerYear}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	return p.Index() < other.Index()
}

// After reports whether p is strictly later than other.
func (p Period) After(other Period) bool {
	return p.Index() > other.Index()
}

func (p Period) String() string {
	return fmt.Sprintf("Y%dQ%d", p.Year, p.Quarter)
}
