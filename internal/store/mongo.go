package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/trueque/internal/db"
	"greendrake/trueque/internal/models"
)

const (
	listingsCollection = "listings"
	offersCollection   = "offers"
	usersCollection    = "users"
)

// MongoStore persists listings and offers in MongoDB. The database handle
// must be created with db.NewRegistry so decimal amounts round-trip.
type MongoStore struct {
	listings *mongo.Collection
	offers   *mongo.Collection
	users    *mongo.Collection
}

// NewMongoStore returns the store and makes sure the by-listing index exists.
func NewMongoStore(ctx context.Context, database *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		listings: database.Collection(listingsCollection),
		offers:   database.Collection(offersCollection),
		users:    database.Collection(usersCollection),
	}
	_, err := s.offers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "submitted_at", Value: 1}},
		Options: options.Index().SetName("listing_id_submitted_at"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create offers index: %w", err)
	}
	_, err = s.listings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "kind", Value: 1}},
		Options: options.Index().SetName("status_kind"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create listings index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, translateMongoError(err)
	}
	return &u, nil
}

// PutUser upserts a user. Used for seeding.
func (s *MongoStore) PutUser(ctx context.Context, u models.User) error {
	return upsert(ctx, s.users, u.ID, &u)
}

func (s *MongoStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := s.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return nil, translateMongoError(err)
	}
	return &l, nil
}

func (s *MongoStore) PutListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	return upsert(ctx, s.listings, listing.ID, listing)
}

func (s *MongoStore) CompareAndPutListing(ctx context.Context, listing *models.Listing, expected models.ListingStatus) error {
	if err := listing.CheckShape(); err != nil {
		return err
	}
	return replaceIf(ctx, s.listings, "listing", listing.ID, string(expected), listing)
}

func (s *MongoStore) DeleteListing(ctx context.Context, id string) error {
	return deleteByID(ctx, s.listings, id)
}

func (s *MongoStore) ScanListings(ctx context.Context, q ListingQuery, match func(*models.Listing) bool) ([]*models.Listing, error) {
	filter := bson.M{}
	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.statusStrings()}
	}
	if q.Kind != "" {
		filter["kind"] = string(q.Kind)
	}
	if q.OwnerID != "" {
		filter["owner_id"] = q.OwnerID
	}
	if q.ClosesBy != nil {
		filter["auction.closes_at"] = bson.M{"$lte": *q.ClosesBy}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if match == nil && q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.listings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Listing
	for cursor.Next(ctx) {
		var l models.Listing
		if err := cursor.Decode(&l); err != nil {
			return nil, fmt.Errorf("failed to decode listing: %w", err)
		}
		if match == nil || match(&l) {
			out = append(out, &l)
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, cursor.Err()
}

func (s *MongoStore) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var o models.Offer
	if err := s.offers.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, translateMongoError(err)
	}
	o.Status = models.NormalizeOfferStatus(string(o.Status))
	return &o, nil
}

func (s *MongoStore) PutOffer(ctx context.Context, offer *models.Offer) error {
	c := offer.Clone()
	c.Status = models.NormalizeOfferStatus(string(c.Status))
	return upsert(ctx, s.offers, c.ID, c)
}

func (s *MongoStore) CompareAndPutOffer(ctx context.Context, offer *models.Offer, expected models.OfferStatus) error {
	c := offer.Clone()
	c.Status = models.NormalizeOfferStatus(string(c.Status))
	return replaceIf(ctx, s.offers, "offer", c.ID, string(expected), c)
}

func (s *MongoStore) DeleteOffer(ctx context.Context, id string) error {
	return deleteByID(ctx, s.offers, id)
}

func (s *MongoStore) ScanOffers(ctx context.Context, match func(*models.Offer) bool) ([]*models.Offer, error) {
	return s.findOffers(ctx, bson.M{}, match)
}

func (s *MongoStore) OffersForListing(ctx context.Context, listingID string) ([]*models.Offer, error) {
	return s.findOffers(ctx, bson.M{"listing_id": listingID}, nil)
}

func (s *MongoStore) Close() error { return nil }

func (s *MongoStore) findOffers(ctx context.Context, filter bson.M, match func(*models.Offer) bool) ([]*models.Offer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.offers.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find offers: %w", err)
	}
	defer cursor.Close(ctx)

	out := []*models.Offer{}
	for cursor.Next(ctx) {
		var o models.Offer
		if err := cursor.Decode(&o); err != nil {
			return nil, fmt.Errorf("failed to decode offer: %w", err)
		}
		o.Status = models.NormalizeOfferStatus(string(o.Status))
		if match == nil || match(&o) {
			out = append(out, &o)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	// BSON dates keep millisecond precision; reapply the in-process order rule.
	sortBySubmission(out)
	return out, nil
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc interface{}) error {
	return db.Try(ctx, func(ctx context.Context) error {
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
		return err
	})
}

// replaceIf swaps the document only while its status is expected. A miss is
// reported as ErrNotFound or ErrStale after looking the id up again.
func replaceIf(ctx context.Context, coll *mongo.Collection, kind, id, expected string, doc interface{}) error {
	var res *mongo.UpdateResult
	err := db.Try(ctx, func(ctx context.Context) error {
		var err error
		res, err = coll.ReplaceOne(ctx, bson.M{"_id": id, "status": expected}, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s %s: %w", kind, id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var cur struct {
		Status string `bson:"status"`
	}
	findOpts := options.FindOne().SetProjection(bson.M{"status": 1})
	if err := coll.FindOne(ctx, bson.M{"_id": id}, findOpts).Decode(&cur); err != nil {
		return translateMongoError(err)
	}
	return staleError(kind, id, cur.Status, expected)
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func translateMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
