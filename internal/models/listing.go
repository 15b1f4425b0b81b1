package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ListingKind selects which payload a listing carries.
type ListingKind string

const (
	ListingKindAuction ListingKind = "AUCTION"
	ListingKindBarter  ListingKind = "BARTER"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "ACTIVE"
	ListingStatusClosed    ListingStatus = "CLOSED"
	ListingStatusFinalized ListingStatus = "FINALIZED"
	ListingStatusPaused    ListingStatus = "PAUSED"
	ListingStatusDeleted   ListingStatus = "DELETED"
)

// listingTransitions lists every allowed forward move. Anything else is a regression.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingStatusActive: {ListingStatusClosed, ListingStatusPaused, ListingStatusDeleted},
	ListingStatusPaused: {ListingStatusDeleted},
	ListingStatusClosed: {ListingStatusFinalized},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	for _, allowed := range listingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusClosed, ListingStatusFinalized, ListingStatusPaused, ListingStatusDeleted:
		return true
	}
	return false
}

// AuctionTerms is the payload of an auction listing. Both fields are fixed at creation.
type AuctionTerms struct {
	ReservePrice decimal.Decimal `bson:"reserve_price" json:"reserve_price"`
	ClosesAt     time.Time       `bson:"closes_at" json:"closes_at"`
}

// BarterTerms is the payload of a barter listing.
type BarterTerms struct {
	DesiredItems string `bson:"desired_items" json:"desired_items"`
}

// Listing is an item offered by its owner, either at auction or for barter.
// Exactly one of Auction and Barter is set, matching Kind.
type Listing struct {
	ID             string        `bson:"_id" json:"id"`
	Kind           ListingKind   `bson:"kind" json:"kind"`
	OwnerID        string        `bson:"owner_id" json:"owner_id"`
	Title          string        `bson:"title" json:"title"`
	Description    string        `bson:"description" json:"description"`
	Photos         []string      `bson:"photos" json:"photos"` // Object storage keys
	Status         ListingStatus `bson:"status" json:"status"`
	WinningOfferID *string       `bson:"winning_offer_id,omitempty" json:"winning_offer_id,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
	ClosedAt       *time.Time    `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	Auction        *AuctionTerms `bson:"auction,omitempty" json:"auction,omitempty"`
	Barter         *BarterTerms  `bson:"barter,omitempty" json:"barter,omitempty"`
}

// ErrInvalidListing is wrapped by CheckShape failures.
var ErrInvalidListing = errors.New("invalid listing")

// CheckShape verifies that the payload matches Kind and the status is known.
func (l *Listing) CheckShape() error {
	switch l.Kind {
	case ListingKindAuction:
		if l.Auction == nil || l.Barter != nil {
			return fmt.Errorf("%w: auction listing %s must carry auction terms only", ErrInvalidListing, l.ID)
		}
	case ListingKindBarter:
		if l.Barter == nil || l.Auction != nil {
			return fmt.Errorf("%w: barter listing %s must carry barter terms only", ErrInvalidListing, l.ID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidListing, l.Kind)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, l.Status)
	}
	return nil
}

// IsAuction reports whether the listing is an auction.
func (l *Listing) IsAuction() bool {
	return l.Kind == ListingKindAuction && l.Auction != nil
}

// Expired reports whether an auction's close time has been reached at now.
// Barter listings never expire.
func (l *Listing) Expired(now time.Time) bool {
	return l.IsAuction() && !now.Before(l.Auction.ClosesAt)
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.Photos != nil {
		c.Photos = append([]string(nil), l.Photos...)
	}
	if l.WinningOfferID != nil {
		id := *l.WinningOfferID
		c.WinningOfferID = &id
	}
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		c.ClosedAt = &t
	}
	if l.Auction != nil {
		a := *l.Auction
		c.Auction = &a
	}
	if l.Barter != nil {
		b := *l.Barter
		c.Barter = &b
	}
	return &c
}
