package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"greendrake/trueque/internal/models"
)

// Money columns are decimal(models.MoneyPrecision, models.MoneyScale); the
// services reject amounts that would be rounded on write.
type listingRow struct {
	ID             string              `gorm:"primaryKey;size:26"`
	Kind           string              `gorm:"size:16;not null"`
	OwnerID        string              `gorm:"size:64;index;not null"`
	Title          string              `gorm:"not null"`
	Description    string              `gorm:"type:text"`
	Photos         []string            `gorm:"serializer:json"`
	Status         string              `gorm:"size:16;index;not null"`
	WinningOfferID *string             `gorm:"size:26"`
	ReservePrice   decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	ClosesAt       *time.Time          `gorm:"index"`
	DesiredItems   *string             `gorm:"type:text"`
	CreatedAt      time.Time           `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime:false"`
	ClosedAt       *time.Time
}

func (listingRow) TableName() string { return "listings" }

type offerRow struct {
	ID                string          `gorm:"primaryKey;size:26"`
	ListingID         string          `gorm:"size:26;not null;index:idx_offers_listing,priority:1"`
	BidderID          string          `gorm:"size:64;not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BarterDescription *string         `gorm:"type:text"`
	Images            []string        `gorm:"serializer:json"`
	Status            string          `gorm:"size:16;not null"`
	SubmittedAt       time.Time       `gorm:"not null;index:idx_offers_listing,priority:2"`
	DecidedAt         *time.Time
}

func (offerRow) TableName() string { return "offers" }

type userRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string
	IsModerator bool
	Suspended   bool
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (userRow) TableName() string { return "users" }

// SQLStore persists through gorm. Postgres in production, SQLite in tests.
// The by-listing lookup is served by the idx_offers_listing index.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns the store.
func NewSQLStore(gdb *gorm.DB) (*SQLStore, error) {
	if err := gdb.AutoMigrate(&listingRow{}, &offerRow{}, &userRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate marketplace schema: %w", err)
	}
	return &SQLStore{db: gdb}, nil
}

// PutUser adds or replaces a user. Used for seeding.
func (s *SQLStore) PutUser(ctx context.Context, u models.User) error {
	row := userRow{ID: u.ID, Name: u.Name, IsModerator: u.IsModerator, Suspended: u.Suspended, CreatedAt: u.CreatedAt}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &models.User{ID: row.ID, Name: row.Name, IsModerator: row.IsModerator, Suspended: row.Suspended, CreatedAt: row.CreatedAt}, nil
}

func (s *SQLStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var row listingRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateGormError(err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) PutListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	row := listingRowFrom(listing)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *SQLStore) CompareAndPutListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	row := listingRowFrom(listing)
	res := s.db.WithContext(ctx).
		Model(&listingRow{}).
		Where("id = ? AND status = ?", row.ID, string(expected)).
		Select("*").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, &listingRow{}, "listing", row.ID, string(expected))
	}
	return nil
}

func (s *SQLStore) DeleteListing(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&listingRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ScanListings(ctx context.Context, q ListingQuery, match func(*models.Listing) bool) ([]*models.Listing, error) {
	tx := s.db.WithContext(ctx).Model(&listingRow{})
	if q.Kind != "" {
		tx = tx.Where("kind = ?", string(q.Kind))
	}
	if q.OwnerID != "" {
		tx = tx.Where("owner_id = ?", q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.statusStrings())
	}
	if q.ClosesBy != nil {
		tx = tx.Where("closes_at <= ?", *q.ClosesBy)
	}
	if match == nil && q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []listingRow
	if err := tx.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []*models.Listing
	for i := range rows {
		l := rows[i].toModel()
		if match == nil || match(l) {
			out = append(out, l)
		}
	}
	return limitListings(out, q.Limit), nil
}

func (s *SQLStore) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var row offerRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateGormError(err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) PutOffer(ctx context.Context, offer *models.Offer) error {
	row := offerRowFrom(offer)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *SQLStore) CompareAndPutOffer(ctx context.Context, offer *models.Offer, expected models.OfferStatus) error {
	row := offerRowFrom(offer)
	res := s.db.WithContext(ctx).
		Model(&offerRow{}).
		Where("id = ? AND status = ?", row.ID, string(expected)).
		Select("*").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, &offerRow{}, "offer", row.ID, string(expected))
	}
	return nil
}

func (s *SQLStore) DeleteOffer(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&offerRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ScanOffers(ctx context.Context, match func(*models.Offer) bool) ([]*models.Offer, error) {
	var rows []offerRow
	if err := s.db.WithContext(ctx).Order("submitted_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []*models.Offer
	for i := range rows {
		o := rows[i].toModel()
		if match == nil || match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *SQLStore) OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error) {
	var rows []offerRow
	err := s.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Offer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	// Timestamps can lose precision in the database; keep the in-process order rule.
	sortBySubmission(out)
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// explainMiss tells a missing row from one whose status moved on.
func (s *SQLStore) explainMiss(ctx context.Context, model interface{}, kind, id, expected string) error {
	var cur struct{ Status string }
	err := s.db.WithContext(ctx).Model(model).Select("status").Where("id = ?", id).Take(&cur).Error
	if err != nil {
		return translateGormError(err)
	}
	return staleError(kind, id, cur.Status, expected)
}

func translateGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func listingRowFrom(l *models.Listing) listingRow {
	row := listingRow{
		ID:             l.ID,
		Kind:           string(l.Kind),
		OwnerID:        l.OwnerID,
		Title:          l.Title,
		Description:    l.Description,
		Photos:         l.Photos,
		Status:         string(l.Status),
		WinningOfferID: l.WinningOfferID,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		ClosedAt:       l.ClosedAt,
	}
	switch l.Kind {
	case models.ListingKindAuction:
		row.ReservePrice = decimal.NewNullDecimal(l.Auction.ReservePrice)
		closesAt := l.Auction.ClosesAt
		row.ClosesAt = &closesAt
	case models.ListingKindBarter:
		desired := l.Barter.DesiredItems
		row.DesiredItems = &desired
	}
	return row
}

func (r *listingRow) toModel() *models.Listing {
	l := &models.Listing{
		ID:             r.ID,
		Kind:           models.ListingKind(r.Kind),
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Description:    r.Description,
		Photos:         r.Photos,
		Status:         models.ListingStatus(r.Status),
		WinningOfferID: r.WinningOfferID,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		ClosedAt:       r.ClosedAt,
	}
	switch l.Kind {
	case models.ListingKindAuction:
		terms := &models.AuctionTerms{ReservePrice: r.ReservePrice.Decimal}
		if r.ClosesAt != nil {
			terms.ClosesAt = r.ClosesAt.UTC()
		}
		l.Auction = terms
	case models.ListingKindBarter:
		terms := &models.BarterTerms{}
		if r.DesiredItems != nil {
			terms.DesiredItems = *r.DesiredItems
		}
		l.Barter = terms
	}
	return l
}

func offerRowFrom(o *models.Offer) offerRow {
	return offerRow{
		ID:                o.ID,
		ListingID:         o.ListingID,
		BidderID:          o.BidderID,
		Amount:            o.Amount,
		BarterDescription: o.BarterDescription,
		Images:            o.Images,
		Status:            string(models.NormalizeOfferStatus(string(o.Status))),
		SubmittedAt:       o.SubmittedAt,
		DecidedAt:         o.DecidedAt,
	}
}

func (r *offerRow) toModel() *models.Offer {
	return &models.Offer{
		ID:                r.ID,
		ListingID:         r.ListingID,
		BidderID:          r.BidderID,
		Amount:            r.Amount,
		BarterDescription: r.BarterDescription,
		Images:            r.Images,
		Status:            models.NormalizeOfferStatus(r.Status),
		SubmittedAt:       r.SubmittedAt.UTC(),
		DecidedAt:         r.DecidedAt,
	}
}
