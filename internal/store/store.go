// Package store holds the persistence ports of the marketplace and their
// in-memory, MongoDB and SQL implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"greendrake/trueque/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStale is returned by the CompareAndPut writes when the stored status
	// is no longer the one the caller read.
	ErrStale = errors.New("record changed concurrently")
)

// ListingQuery narrows a listing scan. Zero fields match everything.
type ListingQuery struct {
	Kind     models.ListingKind
	OwnerID  string
	Statuses []models.ListingStatus
	// ClosesBy keeps auctions whose close time is at or before it.
	ClosesBy *time.Time
	// Limit caps the result after the match func has run. Zero is unlimited.
	Limit int
}

// Matches applies the query to one listing.
func (q ListingQuery) Matches(l *models.Listing) bool {
	if q.Kind != "" && l.Kind != q.Kind {
		return false
	}
	if q.OwnerID != "" && l.OwnerID != q.OwnerID {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, l.Status) {
		return false
	}
	if q.ClosesBy != nil && (l.Auction == nil || l.Auction.ClosesAt.After(*q.ClosesBy)) {
		return false
	}
	return true
}

func (q ListingQuery) statusStrings() []string {
	out := make([]string, len(q.Statuses))
	for i, st := range q.Statuses {
		out[i] = string(st)
	}
	return out
}

func containsStatus(statuses []models.ListingStatus, st models.ListingStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// ListingStore is the single source of truth for listing state.
// CompareAndPutListing replaces a listing only while its stored status is
// expected, so writers in other processes cannot be overwritten.
type ListingStore interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	PutListing(ctx context.Context, listing *models.Listing) error
	CompareAndPutListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error
	DeleteListing(ctx context.Context, id string) error
	ScanListings(ctx context.Context, q ListingQuery, match func(*models.Listing) bool) ([]*models.Listing, error)
}

// OfferStore keeps offers and a by-listing index over them.
// OffersForListing returns offers in submission order.
type OfferStore interface {
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	PutOffer(ctx context.Context, offer *models.Offer) error
	CompareAndPutOffer(ctx context.Context, offer *models.Offer, expected models.OfferStatus) error
	DeleteOffer(ctx context.Context, id string) error
	ScanOffers(ctx context.Context, match func(*models.Offer) bool) ([]*models.Offer, error)
	OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error)
}

// UserStore is the read side of the account directory.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// IndexMaintainer is implemented by stores that keep their own secondary index.
type IndexMaintainer interface {
	RebuildIndex()
	VerifyIndex() error
}

// Store bundles the three ports.
type Store interface {
	ListingStore
	OfferStore
	UserStore
	Close() error
}

func sortBySubmission(offers []*models.Offer) {
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].SubmittedBefore(offers[j])
	})
}

func sortListings(listings []*models.Listing) {
	sort.Slice(listings, func(i, j int) bool {
		if !listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].CreatedAt.After(listings[j].CreatedAt)
		}
		return listings[i].ID > listings[j].ID
	})
}

func staleError(kind, id, got, expected string) error {
	return fmt.Errorf("%w: %s %s is %s, expected %s", ErrStale, kind, id, got, expected)
}

func limitListings(listings []*models.Listing, limit int) []*models.Listing {
	if limit > 0 && len(listings) > limit {
		return listings[:limit]
	}
	return listings
}
