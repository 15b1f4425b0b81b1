package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func(ctx context.Context) error

// IsRetryable decides whether a failed operation should be attempted again.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// baseBackoff is the delay before the first retry; later retries grow linearly.
var baseBackoff = 50 * time.Millisecond

// Try executes an operation with default retry settings.
// It uses DefaultMaxRetries and IsTransientMongoError.
func Try(ctx context.Context, op Operation) error {
	return WithRetries(ctx, op, DefaultMaxRetries, IsTransientMongoError)
}

// WithRetries executes op up to maxRetries+1 times while retryable reports the
// failure as transient. Cancellation of ctx stops the loop with the context error.
func WithRetries(ctx context.Context, op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * baseBackoff):
		}
	}
	return err
}

// IsTransientMongoError reports errors worth another attempt: duplicate keys
// raised by racing upserts, network failures and timeouts.
func IsTransientMongoError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsMongoDuplicateKeyError(err) || mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}
