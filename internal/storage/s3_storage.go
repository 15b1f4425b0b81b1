package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"greendrake/trueque/internal/config"
)

// Upload purposes. The key prefix tells listing photos and offer images apart.
const (
	PurposeListing = "listing"
	PurposeOffer   = "offer"
)

// ErrInvalidUpload is returned for requests that cannot be signed.
var ErrInvalidUpload = errors.New("invalid upload request")

var contentTypeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadRequest describes one file a user wants to upload.
type UploadRequest struct {
	UserID      string
	Purpose     string
	ContentType string
}

// Upload is a signed PUT URL and the object key to attach once uploaded.
type Upload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	PresignUpload(ctx context.Context, req UploadRequest) (*Upload, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg           *config.Config
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is not set")
	}
	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKeyID != "" {
		// Static keys from env; otherwise the default chain (IAM role, profile).
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		cfg:           cfg,
		presignClient: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
	}, nil
}

// ObjectKey builds the key for a new upload: <purpose>s/<user>/<uuid><ext>.
func ObjectKey(req UploadRequest) (string, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.ContainsAny(req.UserID, "/\\") {
		return "", fmt.Errorf("%w: bad user id", ErrInvalidUpload)
	}
	if req.Purpose != PurposeListing && req.Purpose != PurposeOffer {
		return "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidUpload, req.Purpose)
	}
	ext, ok := contentTypeExt[strings.ToLower(req.ContentType)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidUpload, req.ContentType)
	}
	return path.Join(req.Purpose+"s", req.UserID, uuid.NewString()+ext), nil
}

// PresignUpload creates a pre-signed URL for uploading one image.
func (s *s3Storage) PresignUpload(ctx context.Context, req UploadRequest) (*Upload, error) {
	objectKey, err := ObjectKey(req)
	if err != nil {
		return nil, err
	}

	expiration := s.cfg.UploadURLTTL
	if expiration <= 0 {
		expiration = 15 * time.Minute
	}

	presignParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(strings.ToLower(req.ContentType)),
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(expiration))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	log.Printf("Generated presigned URL for key: %s", objectKey)
	return &Upload{URL: presignedReq.URL, Key: objectKey, ExpiresAt: time.Now().UTC().Add(expiration)}, nil
}
