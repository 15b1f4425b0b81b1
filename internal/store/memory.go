package store

import (
	"context"
	"fmt"
	"sync"

	"greendrake/trueque/internal/models"
)

// MemoryStore keeps everything in process memory. Offers live in a primary
// map keyed by id with a secondary listing id -> offer id set index that is
// updated on every put and delete. Records are copied on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[string]*models.Listing
	offers    map[string]*models.Offer
	byListing map[string]map[string]struct{}
	users     map[string]*models.User
}

// NewMemoryStore returns an empty store seeded with the given users.
func NewMemoryStore(users ...models.User) *MemoryStore {
	s := &MemoryStore{
		listings:  make(map[string]*models.Listing),
		offers:    make(map[string]*models.Offer),
		byListing: make(map[string]map[string]struct{}),
		users:     make(map[string]*models.User),
	}
	for i := range users {
		s.PutUser(users[i])
	}
	return s
}

// PutUser adds or replaces a user in the directory.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) PutListing(_ context.Context, listing *models.Listing) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ID] = listing.Clone()
	return nil
}

func (s *MemoryStore) CompareAndPutListing(_ context.Context, listing *models.Listing, expected models.ListingStatus) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.listings[listing.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return staleError("listing", listing.ID, string(cur.Status), string(expected))
	}
	s.listings[listing.ID] = listing.Clone()
	return nil
}

func (s *MemoryStore) DeleteListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return ErrNotFound
	}
	delete(s.listings, id)
	return nil
}

func (s *MemoryStore) ScanListings(ctx context.Context, q ListingQuery, match func(*models.Listing) bool) ([]*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Listing
	for _, l := range s.listings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.Matches(l) && (match == nil || match(l)) {
			out = append(out, l.Clone())
		}
	}
	sortListings(out)
	return limitListings(out, q.Limit), nil
}

func (s *MemoryStore) GetOffer(_ context.Context, id string) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) PutOffer(_ context.Context, offer *models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putOfferLocked(offer)
	return nil
}

func (s *MemoryStore) CompareAndPutOffer(_ context.Context, offer *models.Offer, expected models.OfferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.offers[offer.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return staleError("offer", offer.ID, string(cur.Status), string(expected))
	}
	s.putOfferLocked(offer)
	return nil
}

func (s *MemoryStore) putOfferLocked(offer *models.Offer) {
	if prev, ok := s.offers[offer.ID]; ok && prev.ListingID != offer.ListingID {
		s.unindex(prev)
	}
	c := offer.Clone()
	c.Status = models.NormalizeOfferStatus(string(c.Status))
	s.offers[offer.ID] = c
	s.index(c)
}

func (s *MemoryStore) DeleteOffer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.offers, id)
	s.unindex(o)
	return nil
}

func (s *MemoryStore) ScanOffers(ctx context.Context, match func(*models.Offer) bool) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Offer
	for _, o := range s.offers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if match == nil || match(o) {
			out = append(out, o.Clone())
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *MemoryStore) OffersForListing(_ context.Context, listingID string) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byListing[listingID]
	out := make([]*models.Offer, 0, len(ids))
	for id := range ids {
		out = append(out, s.offers[id].Clone())
	}
	sortBySubmission(out)
	return out, nil
}

// RebuildIndex discards the secondary index and reconstructs it from the
// primary offer map. Running it any number of times yields the same index.
func (s *MemoryStore) RebuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byListing = make(map[string]map[string]struct{}, len(s.byListing))
	for _, o := range s.offers {
		s.index(o)
	}
}

// VerifyIndex reports the first mismatch between the index and the primary map.
func (s *MemoryStore) VerifyIndex() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indexed := 0
	for listingID, ids := range s.byListing {
		for id := range ids {
			o, ok := s.offers[id]
			if !ok {
				return fmt.Errorf("index entry %s under listing %s has no offer", id, listingID)
			}
			if o.ListingID != listingID {
				return fmt.Errorf("offer %s indexed under listing %s but belongs to %s", id, listingID, o.ListingID)
			}
			indexed++
		}
	}
	if indexed != len(s.offers) {
		return fmt.Errorf("index holds %d offers, primary map holds %d", indexed, len(s.offers))
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) index(o *models.Offer) {
	set, ok := s.byListing[o.ListingID]
	if !ok {
		set = make(map[string]struct{})
		s.byListing[o.ListingID] = set
	}
	set[o.ID] = struct{}{}
}

func (s *MemoryStore) unindex(o *models.Offer) {
	set := s.byListing[o.ListingID]
	delete(set, o.ID)
	if len(set) == 0 {
		delete(s.byListing, o.ListingID)
	}
}
