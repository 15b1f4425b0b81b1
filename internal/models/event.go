package models

import "time"

// EventType names a state change published to notification sinks.
type EventType string

const (
	EventOfferSubmitted   EventType = "offer.submitted"
	EventOfferAccepted    EventType = "offer.accepted"
	EventOfferRejected    EventType = "offer.rejected"
	EventOfferWithdrawn   EventType = "offer.withdrawn"
	EventOfferRemoved     EventType = "offer.removed"
	EventListingClosed    EventType = "listing.closed"
	EventListingPaused    EventType = "listing.paused"
	EventListingDeleted   EventType = "listing.deleted"
	EventListingFinalized EventType = "listing.finalized"
)

// Event describes one committed state change. It carries identifiers only.
type Event struct {
	Type           EventType `json:"type"`
	ListingID      string    `json:"listing_id"`
	OwnerID        string    `json:"owner_id,omitempty"`
	OfferID        string    `json:"offer_id,omitempty"`
	BidderID       string    `json:"bidder_id,omitempty"`
	WinningOfferID *string   `json:"winning_offer_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
