package model

import (
	"fmt"
	"time"
)

type Cadence string

const (
	CadenceMinute  Cadence = "minute"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceMinute, CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceYearly:
		return c, nil
	}
	return "", fmt.Errorf("unsupported cadence %q", s)
}

// NextDue returns the first due time after from. Month and year steps use calendar
// arithmetic, so Jan 31 + 1 month normalizes to early March.
func (c Cadence) NextDue(from time.Time) time.Time {
	switch c {
	case CadenceMinute:
		return from.Add(time.Minute)
	case CadenceDaily:
		return from.AddDate(0, 0, 1)
	case CadenceWeekly:
		return from.AddDate(0, 0, 7)
	case CadenceMonthly:
		return from.AddDate(0, 1, 0)
	case CadenceYearly:
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 0, 1)
}

type RecurringStatus string

const (
	RecurringActive RecurringStatus = "active"
	RecurringPaused RecurringStatus = "paused"
)

type RecurringTransfer struct {
	ID               string          `db:"id"`
	Owner            string          `db:"owner"`
	CustodyWallet    string          `db:"custody_wallet"`
	Recipient        string          `db:"recipient"`
	Amount           string          `db:"amount"`
	Cadence          Cadence         `db:"cadence"`
	DestinationChain string          `db:"destination_chain"`
	Status           RecurringStatus `db:"status"`
	NextDueAt        time.Time       `db:"next_due_at"`
	LastExecutedAt   *time.Time      `db:"last_executed_at"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}
