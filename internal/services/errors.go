package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind groups marketplace failures for callers that only care about the class.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindPermission    ErrorKind = "permission"
	KindStateConflict ErrorKind = "state_conflict"
	KindNotFound      ErrorKind = "not_found"
)

// ErrorCode identifies one specific failure.
type ErrorCode string

const (
	CodeInvalidAmount            ErrorCode = "invalid_amount"
	CodeMissingBarterDescription ErrorCode = "missing_barter_description"
	CodeInvalidImages            ErrorCode = "invalid_images"
	CodeInvalidListing           ErrorCode = "invalid_listing"
	CodeNotAuction               ErrorCode = "not_auction"
	CodeNotOwner                 ErrorCode = "not_owner"
	CodeNotOfferParty            ErrorCode = "not_offer_party"
	CodeNotBidder                ErrorCode = "not_bidder"
	CodeSelfOffer                ErrorCode = "self_offer"
	CodeListingNotActive         ErrorCode = "listing_not_active"
	CodeAuctionExpired           ErrorCode = "auction_expired"
	CodeAuctionOpen              ErrorCode = "auction_open"
	CodeBidTooLow                ErrorCode = "bid_too_low"
	CodeOfferTerminal            ErrorCode = "offer_terminal"
	CodeNotHighestBid            ErrorCode = "not_highest_bid"
	CodeInvalidTransition        ErrorCode = "invalid_transition"
	CodeListingNotFound          ErrorCode = "listing_not_found"
	CodeOfferNotFound            ErrorCode = "offer_not_found"
	CodeUnknownUser              ErrorCode = "unknown_user"
)

// Error is the typed failure returned by marketplace operations.
// errors.Is matches on Code, so a sentinel such as ErrBidTooLow matches any
// bid_too_low failure regardless of message or floor.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	// Floor is set on bid_too_low: the amount a new bid has to exceed.
	Floor *decimal.Decimal
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(kind ErrorKind, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func sentinel(kind ErrorKind, code ErrorCode) *Error {
	return &Error{Kind: kind, Code: code, Message: string(code)}
}

var (
	ErrInvalidAmount            = sentinel(KindValidation, CodeInvalidAmount)
	ErrMissingBarterDescription = sentinel(KindValidation, CodeMissingBarterDescription)
	ErrInvalidImages            = sentinel(KindValidation, CodeInvalidImages)
	ErrInvalidListing           = sentinel(KindValidation, CodeInvalidListing)
	ErrNotAuction               = sentinel(KindValidation, CodeNotAuction)
	ErrNotOwner                 = sentinel(KindPermission, CodeNotOwner)
	ErrNotOfferParty            = sentinel(KindPermission, CodeNotOfferParty)
	ErrNotBidder                = sentinel(KindPermission, CodeNotBidder)
	ErrSelfOffer                = sentinel(KindPermission, CodeSelfOffer)
	ErrListingNotActive         = sentinel(KindStateConflict, CodeListingNotActive)
	ErrAuctionExpired           = sentinel(KindStateConflict, CodeAuctionExpired)
	ErrAuctionOpen              = sentinel(KindStateConflict, CodeAuctionOpen)
	ErrBidTooLow                = sentinel(KindStateConflict, CodeBidTooLow)
	ErrOfferTerminal            = sentinel(KindStateConflict, CodeOfferTerminal)
	ErrNotHighestBid            = sentinel(KindStateConflict, CodeNotHighestBid)
	ErrInvalidTransition        = sentinel(KindStateConflict, CodeInvalidTransition)
	ErrListingNotFound          = sentinel(KindNotFound, CodeListingNotFound)
	ErrOfferNotFound            = sentinel(KindNotFound, CodeOfferNotFound)
	ErrUnknownUser              = sentinel(KindNotFound, CodeUnknownUser)
)

// KindOf returns the kind of a marketplace error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func bidTooLow(floor decimal.Decimal) *Error {
	f := floor
	return &Error{
		Kind:    KindStateConflict,
		Code:    CodeBidTooLow,
		Message: fmt.Sprintf("bid must be greater than %s", floor.String()),
		Floor:   &f,
	}
}
