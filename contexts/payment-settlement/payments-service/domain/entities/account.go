package entities

import "time"

// Account holds a user's spendable balance in minor units.
type Account struct {
	UserID       string
	BalanceMinor int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
