package mediastore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"
)

// Store issues presigned upload URLs and verifies source objects.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     Config
}

// UploadTarget is a time-limited upload destination handed to a client.
type UploadTarget struct {
	// URL is the presigned PUT URL.
	URL string `json:"url"`

	// Method is the HTTP method the client must use.
	Method string `json:"method"`

	// Key is the object key the upload lands at; it is what the client
	// later references in a compression request.
	Key string `json:"key"`

	// ExpiresAt is when the URL stops being valid.
	ExpiresAt time.Time `json:"expiresAt"`
}

// New creates a media store against the configured bucket.
//
// The store uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &StoreError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	if cfg.UploadExpiry <= 0 {
		cfg.UploadExpiry = DefaultUploadExpiry
	}

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if set; let the SDK resolve from
	// env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// UploadURL issues a presigned PUT URL for key. The key must match one of
// the configured allow patterns.
func (s *Store) UploadURL(ctx context.Context, key string) (*UploadTarget, error) {
	if !s.KeyAllowed(key) {
		return nil, &StoreError{Op: "UploadURL", Bucket: s.cfg.Bucket, Key: key, Err: ErrKeyNotAllowed}
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.UploadExpiry))
	if err != nil {
		return nil, s.wrapError("UploadURL", key, err)
	}

	return &UploadTarget{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		ExpiresAt: time.Now().Add(s.cfg.UploadExpiry),
	}, nil
}

// Verify confirms the object exists before a job is submitted for it.
func (s *Store) Verify(ctx context.Context, key string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrapError("Verify", key, err)
	}
	return nil
}

// KeyAllowed reports whether key matches the configured upload patterns.
// An empty pattern list allows everything.
func (s *Store) KeyAllowed(key string) bool {
	if len(s.cfg.AllowedKeyPatterns) == 0 {
		return true
	}
	for _, pattern := range s.cfg.AllowedKeyPatterns {
		if ok, err := doublestar.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.cfg.Bucket
}

// resolveRegion applies the fallback default after SDK config loading:
// us-east-1 for AWS S3 when nothing else resolved a region, no default
// for S3-compatible endpoints.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
