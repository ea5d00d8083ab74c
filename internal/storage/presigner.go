package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hugh/ia-marketing/pkg/config"
	"google.golang.org/api/option"
)

// Signer signs a GET for one backend.
type Signer interface {
	SignGet(ctx context.Context, loc Location, ttl time.Duration) (string, error)
}

type S3Signer struct {
	client *s3.PresignClient
}

// NewS3Signer uses static keys when configured and the default AWS chain
// otherwise. A custom endpoint switches to path style addressing, which
// MinIO and most S3 compatibles need.
func NewS3Signer(ctx context.Context, cfg config.StorageConfig) (*S3Signer, error) {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Signer{client: s3.NewPresignClient(client)}, nil
}

func (s *S3Signer) SignGet(ctx context.Context, loc Location, ttl time.Duration) (string, error) {
	req, err := s.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", loc, err)
	}
	return req.URL, nil
}

type GCSSigner struct {
	client *gcs.Client
}

// NewGCSSigner signs with the service account in credentialsFile. An empty
// path uses application default credentials.
func NewGCSSigner(ctx context.Context, credentialsFile string) (*GCSSigner, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCSSigner{client: client}, nil
}

func (s *GCSSigner) SignGet(_ context.Context, loc Location, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(loc.Bucket).SignedURL(loc.Key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", loc, err)
	}
	return url, nil
}

func (s *GCSSigner) Close() error {
	return s.client.Close()
}

// Presigner routes each location to the signer for its scheme. Plain URLs
// pass through unchanged.
type Presigner struct {
	signers map[string]Signer
	ttl     time.Duration
}

func NewPresigner(ttl time.Duration) *Presigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Presigner{signers: map[string]Signer{}, ttl: ttl}
}

// With registers signer for scheme.
func (p *Presigner) With(scheme string, signer Signer) *Presigner {
	p.signers[scheme] = signer
	return p
}

func (p *Presigner) SignedURL(ctx context.Context, raw string) (string, error) {
	if !IsObjectLocation(raw) {
		return raw, nil
	}
	loc, err := ParseLocation(raw)
	if err != nil {
		return "", err
	}
	signer, ok := p.signers[loc.Scheme]
	if !ok {
		return "", fmt.Errorf("no signer configured for %s locations", loc.Scheme)
	}
	return signer.SignGet(ctx, loc, p.ttl)
}

// NewFromConfig registers S3 always and GCS when a credentials file is set.
// Backends that fail to initialise are logged and left out.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) *Presigner {
	p := NewPresigner(cfg.SignedURLTTL())

	if s3Signer, err := NewS3Signer(ctx, cfg); err != nil {
		log.Warn("S3 signing disabled", "error", err)
	} else {
		p.With(SchemeS3, s3Signer)
	}

	if cfg.GCSCredentialsFile != "" {
		if gcsSigner, err := NewGCSSigner(ctx, cfg.GCSCredentialsFile); err != nil {
			log.Warn("GCS signing disabled", "error", err)
		} else {
			p.With(SchemeGCS, gcsSigner)
		}
	}
	return p
}
