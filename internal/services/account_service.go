package services

import (
	"context"
	"errors"
	"fmt"

	"greendrake/trueque/internal/models"
	"greendrake/trueque/internal/store"
)

// IAccountService resolves accounts referenced by marketplace operations.
// It never mutates accounts.
type IAccountService interface {
	ResolveUser(ctx context.Context, userID string) (*models.User, error)
	IsOwner(ctx context.Context, listingID, userID string) (bool, error)
	IsModerator(ctx context.Context, userID string) (bool, error)
}

// accountService implements IAccountService over the user and listing stores.
type accountService struct {
	users    store.UserStore
	listings store.ListingStore
}

// NewAccountService creates a new AccountService.
func NewAccountService(users store.UserStore, listings store.ListingStore) IAccountService {
	return &accountService{users: users, listings: listings}
}

// ResolveUser returns the user or ErrUnknownUser. Suspended accounts do not resolve.
func (s *accountService) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, newError(KindNotFound, CodeUnknownUser, "user id is required")
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, CodeUnknownUser, "user %s not found", userID)
		}
		return nil, fmt.Errorf("error resolving user %s: %w", userID, err)
	}
	if u.Suspended {
		return nil, newError(KindNotFound, CodeUnknownUser, "user %s not found", userID)
	}
	return u, nil
}

func (s *accountService) IsOwner(ctx context.Context, listingID, userID string) (bool, error) {
	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, newError(KindNotFound, CodeListingNotFound, "listing %s not found", listingID)
		}
		return false, fmt.Errorf("error loading listing %s: %w", listingID, err)
	}
	return l.OwnerID == userID, nil
}

func (s *accountService) IsModerator(ctx context.Context, userID string) (bool, error) {
	u, err := s.ResolveUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return false, nil
		}
		return false, err
	}
	return u.IsModerator, nil
}
