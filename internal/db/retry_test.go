package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

// mockMongoDuplicateKeyError creates an error that IsMongoDuplicateKeyError will recognize.
func mockMongoDuplicateKeyError(key string) error {
	mongoErr := mongo.WriteError{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.offers index: _id_ dup key: { : \"%s\" }", key),
	}
	return mongo.WriteException{WriteErrors: []mongo.WriteError{mongoErr}}
}

func init() {
	baseBackoff = time.Millisecond
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	operation := func(context.Context) error {
		opCalled++
		return nil
	}

	err := WithRetries(context.Background(), operation, 3, IsTransientMongoError)
	assert.NoError(t, err)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_FailureNotRetryable(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	operation := func(context.Context) error {
		opCalled++
		return expectedErr
	}

	err := WithRetries(context.Background(), operation, 3, IsTransientMongoError)
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	operation := func(context.Context) error {
		opCalled++
		return mockMongoDuplicateKeyError("01J0000000000000000000000")
	}

	maxRetries := 3
	err := WithRetries(context.Background(), operation, maxRetries, IsTransientMongoError)

	assert.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err), "expected a duplicate key error, got %T: %v", err, err)
	assert.Equal(t, maxRetries+1, opCalled)
}

func TestWithRetries_RaceResolves(t *testing.T) {
	var opCalled int
	operation := func(context.Context) error {
		opCalled++
		if opCalled < 3 {
			return mockMongoDuplicateKeyError("L1")
		}
		return nil
	}

	err := WithRetries(context.Background(), operation, 3, IsTransientMongoError)
	assert.NoError(t, err)
	assert.Equal(t, 3, opCalled)
}

func TestWithRetries_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var opCalled int
	operation := func(context.Context) error {
		opCalled++
		cancel()
		return mockMongoDuplicateKeyError("L1")
	}

	err := WithRetries(ctx, operation, 5, IsTransientMongoError)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, opCalled)
}

func TestIsTransientMongoError(t *testing.T) {
	assert.True(t, IsTransientMongoError(mockMongoDuplicateKeyError("x")))
	assert.False(t, IsTransientMongoError(errors.New("boom")))
	assert.False(t, IsTransientMongoError(context.DeadlineExceeded))
}
