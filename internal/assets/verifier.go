package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"job-forensics/internal/config"
	"job-forensics/internal/logging"
	"job-forensics/internal/models"
)

type headClient interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Verifier probes attested asset locations in object storage. Strictly
// best-effort: any error leaves the asset unchecked rather than failing the
// report.
type Verifier struct {
	client        headClient
	defaultBucket string
	maxChecks     int
	logger        *slog.Logger
}

// NewVerifier builds an S3-backed verifier, or nil when no bucket is
// configured (asset verification disabled).
func NewVerifier(ctx context.Context, cfg config.Config) (*Verifier, error) {
	if cfg.S3AssetBucket == "" {
		return nil, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	maxChecks := cfg.AssetCheckMax
	if maxChecks <= 0 {
		maxChecks = 20
	}
	return &Verifier{
		client:        client,
		defaultBucket: cfg.S3AssetBucket,
		maxChecks:     maxChecks,
		logger:        logging.WithModule("assets"),
	}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

// Check probes each location, bounded by maxChecks. Locations that do not
// resolve to an object key (plain https URLs and the like) are reported
// unchecked.
func (v *Verifier) Check(ctx context.Context, locations []string) []models.AssetCheck {
	out := make([]models.AssetCheck, 0, len(locations))
	checked := 0
	for _, loc := range locations {
		check := models.AssetCheck{Location: loc}
		bucket, key, ok := v.resolve(loc)
		switch {
		case !ok:
			check.Detail = "location is not an object-store key"
		case checked >= v.maxChecks:
			check.Detail = "asset check budget exhausted"
		default:
			checked++
			exists, err := v.head(ctx, bucket, key)
			if err != nil {
				v.logger.Warn("asset probe failed", "location", loc, "error", err)
				check.Detail = "probe failed"
			} else {
				check.Exists = &exists
			}
		}
		out = append(out, check)
	}
	return out
}

func (v *Verifier) head(ctx context.Context, bucket, key string) (bool, error) {
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resolve maps a location string onto (bucket, key). s3://bucket/key is
// explicit; a bare key falls back to the configured default bucket.
func (v *Verifier) resolve(loc string) (bucket, key string, ok bool) {
	if strings.HasPrefix(loc, "s3://") {
		rest := strings.TrimPrefix(loc, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	if strings.Contains(loc, "://") {
		return "", "", false
	}
	return v.defaultBucket, strings.TrimPrefix(loc, "/"), true
}
