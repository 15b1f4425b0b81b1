package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "PENDING"
	OfferStatusAccepted  OfferStatus = "ACCEPTED"
	OfferStatusRejected  OfferStatus = "REJECTED"
	OfferStatusCancelled OfferStatus = "CANCELLED"

	// OfferStatusWinning is the legacy name for an accepted auction bid.
	// It is only ever read, never written; see NormalizeOfferStatus.
	OfferStatusWinning OfferStatus = "WINNING"
)

// NormalizeOfferStatus maps legacy and mixed-case values onto the canonical set.
func NormalizeOfferStatus(s string) OfferStatus {
	st := OfferStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st == OfferStatusWinning {
		return OfferStatusAccepted
	}
	return st
}

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	return s != OfferStatusPending
}

// Offer is a bid on an auction or a trade proposal on a barter listing.
type Offer struct {
	ID                string          `bson:"_id" json:"id"`
	ListingID         string          `bson:"listing_id" json:"listing_id"`
	BidderID          string          `bson:"bidder_id" json:"bidder_id"`
	Amount            decimal.Decimal `bson:"amount" json:"amount"`
	BarterDescription *string         `bson:"barter_description,omitempty" json:"barter_description,omitempty"`
	Images            []string        `bson:"images" json:"images"`
	Status            OfferStatus     `bson:"status" json:"status"`
	SubmittedAt       time.Time       `bson:"submitted_at" json:"submitted_at"`
	DecidedAt         *time.Time      `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
}

// Accept marks a pending offer as accepted.
func (o *Offer) Accept(at time.Time) bool {
	return o.decide(OfferStatusAccepted, at)
}

// Reject marks a pending offer as rejected.
func (o *Offer) Reject(at time.Time) bool {
	return o.decide(OfferStatusRejected, at)
}

// Cancel marks a pending offer as withdrawn by its bidder.
func (o *Offer) Cancel(at time.Time) bool {
	return o.decide(OfferStatusCancelled, at)
}

func (o *Offer) decide(status OfferStatus, at time.Time) bool {
	if o.Status.Terminal() {
		return false
	}
	o.Status = status
	o.DecidedAt = &at
	return true
}

// RanksAbove reports whether o wins over other when choosing an auction winner:
// higher amount first, then earlier submission, then lower id.
func (o *Offer) RanksAbove(other *Offer) bool {
	if c := o.Amount.Cmp(other.Amount); c != 0 {
		return c > 0
	}
	if !o.SubmittedAt.Equal(other.SubmittedAt) {
		return o.SubmittedAt.Before(other.SubmittedAt)
	}
	return o.ID < other.ID
}

// SubmittedBefore orders offers by arrival.
func (o *Offer) SubmittedBefore(other *Offer) bool {
	if !o.SubmittedAt.Equal(other.SubmittedAt) {
		return o.SubmittedAt.Before(other.SubmittedAt)
	}
	return o.ID < other.ID
}

// Clone returns a deep copy.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	c := *o
	if o.BarterDescription != nil {
		d := *o.BarterDescription
		c.BarterDescription = &d
	}
	if o.Images != nil {
		c.Images = append([]string(nil), o.Images...)
	}
	if o.DecidedAt != nil {
		t := *o.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
