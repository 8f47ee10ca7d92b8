// Package store persists transactions, supporters and tiers. Postgres is the
// production implementation; Memory mirrors its guarded-transition semantics
// for tests.
package store

import (
	_ "embed"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

//go:embed schema.sql
var Schema string

// ScheduledCharge is the next membership charge owed by a supporter.
type ScheduledCharge struct {
	SupporterID string    `db:"supporter_id" json:"supporter_id"`
	ChargeAt    time.Time `db:"charge_at" json:"charge_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
