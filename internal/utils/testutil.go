package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var testMongoURI string

func init() {
	loadTestEnv()
}

// loadTestEnv loads the .env file and sets up test environment variables
func loadTestEnv() {
	// Get current file path
	_, filename, _, _ := runtime.Caller(0)
	// Try to load .env from project root (2 levels up from this file)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		// Try current directory as fallback
		_ = godotenv.Load()
	}

	testMongoURI = os.Getenv("MONGO_URI")
}

// SetupTestDB creates a test MongoDB database connection and returns the database instance.
// It drops the given collections to ensure a clean state and skips the test when
// MONGO_URI is not configured.
func SetupTestDB(t *testing.T, registry *bsoncodec.Registry, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	if testMongoURI == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB test")
	}

	opts := options.Client().ApplyURI(testMongoURI)
	if registry != nil {
		opts.SetRegistry(registry)
	}
	client, err := mongo.Connect(context.Background(), opts)
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	db := client.Database(dbName)

	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}

	return db
}

// GetTestMongoURI returns the test MongoDB URI for direct use if needed
func GetTestMongoURI() string {
	if testMongoURI == "" {
		loadTestEnv()
	}
	return testMongoURI
}
