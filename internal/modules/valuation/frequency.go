package valuation

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/madfolio/internal/domain"
)

// Frequency is how often a backtest resets holdings to the target weights.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Quarterly
	Yearly
)

// ParseFrequency accepts names ("monthly") and the pandas-style aliases the
// legacy clients send ("M", "MS", "W", "Q", "A", ...).
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "B", "DAILY":
		return Daily, nil
	case "W", "W-SUN", "WEEKLY":
		return Weekly, nil
	case "", "M", "MS", "ME", "BM", "BMS", "MONTHLY":
		return Monthly, nil
	case "Q", "QS", "QE", "QUARTERLY":
		return Quarterly, nil
	case "A", "AS", "Y", "YS", "YE", "YEARLY", "ANNUAL":
		return Yearly, nil
	}
	return 0, domain.NewDataError("frequency", "unknown frequency %q", s)
}

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		return "monthly"
	}
}

// period identifies the bucket t falls into. Weeks run Monday to Sunday.
func (f Frequency) period(t time.Time) string {
	switch f {
	case Daily:
		return t.Format(domain.DateLayout)
	case Weekly:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Quarterly:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Yearly:
		return fmt.Sprintf("%d", t.Year())
	default:
		return t.Format("2006-01")
	}
}
