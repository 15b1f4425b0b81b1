package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	mongoAppName         = "trueque"
	mongoSelectTimeout   = 10 * time.Second
	mongoShutdownTimeout = 10 * time.Second
)

// MongoClientOptions builds the driver options for a marketplace client.
// Majority writes keep a status change visible to every process once acknowledged.
func MongoClientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetAppName(mongoAppName).
		SetRegistry(NewRegistry()).
		SetServerSelectionTimeout(mongoSelectTimeout).
		SetWriteConcern(writeconcern.Majority())
}

// ConnectMongo opens a client, checks the primary is reachable within ctx and
// returns the named database. Close it with DisconnectMongo.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is empty")
	}
	client, err := mongo.Connect(ctx, MongoClientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if dErr := client.Disconnect(context.WithoutCancel(ctx)); dErr != nil {
			log.Printf("WARNING: failed to drop unreachable MongoDB client: %v", dErr)
		}
		return nil, fmt.Errorf("MongoDB primary unreachable: %w", err)
	}

	log.Printf("Connected to MongoDB database %q", database)
	return client.Database(database), nil
}

// DisconnectMongo closes the client behind database.
func DisconnectMongo(database *mongo.Database) error {
	if database == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoShutdownTimeout)
	defer cancel()
	if err := database.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	log.Println("MongoDB connection closed.")
	return nil
}
