package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoClientOptions(t *testing.T) {
	opts := MongoClientOptions("mongodb://localhost:27017")
	require.NoError(t, opts.Validate())

	require.NotNil(t, opts.AppName)
	assert.Equal(t, "trueque", *opts.AppName)
	assert.NotNil(t, opts.Registry, "decimal codec must be installed")
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 10*time.Second, *opts.ServerSelectionTimeout)
	require.NotNil(t, opts.WriteConcern)
	assert.Equal(t, "majority", opts.WriteConcern.W)
}

func TestConnectMongo_RequiresDatabaseName(t *testing.T) {
	_, err := ConnectMongo(context.Background(), "mongodb://localhost:27017", "")
	assert.Error(t, err)
	assert.NoError(t, DisconnectMongo(nil))
}
