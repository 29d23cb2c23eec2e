// Package s3zen provides client initialization and configuration.
package s3zen

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/keypath"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/delete"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/download"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/list"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/rename"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/operations/upload"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/ratelimit"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/retry"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/internal/s3api"
	"github.com/ezDecode/S3Zen-CloudCore-sub000/s3types"
)

// Engine defaults, overridable through options.
const (
	// DefaultMultipartThreshold is the size above which uploads switch
	// to multipart (16MB).
	DefaultMultipartThreshold = 16 * 1024 * 1024

	// DefaultPresignThreshold is the size at or below which downloads
	// use the presigned fast path (8MB).
	DefaultPresignThreshold = 8 * 1024 * 1024

	// DefaultBatchConcurrency bounds simultaneous uploads in a batch and
	// the copy window during folder renames.
	DefaultBatchConcurrency = 4
)

// Client is the storage engine bound to a single bucket. Bucket,
// region, endpoint, and credentials are fixed at construction; all
// operations are safe for concurrent use.
type Client struct {
	cfg s3types.ClientConfig

	s3Client  s3api.S3API
	stsClient s3api.STSAPI

	limiter  *ratelimit.Limiter
	policies map[s3types.OpCategory]*retry.Policy
	logger   *slog.Logger

	lister     *list.Lister
	uploader   *upload.Uploader
	downloader *download.Downloader
	deleter    *delete.BatchDeleter
	renamer    *rename.Renamer
}

// New creates a Client with the provided options. Credentials come
// from the static credential options when set, otherwise from the
// default AWS credential chain.
//
// Example:
//
//	client, err := s3zen.New(ctx,
//	    s3zen.WithBucket("my-bucket"),
//	    s3zen.WithRegion("us-west-2"),
//	)
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	clientCfg := s3types.ClientConfig{
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           8 * 1024 * 1024,
		PartConcurrency:    4,
		BatchConcurrency:   DefaultBatchConcurrency,
		PresignThreshold:   DefaultPresignThreshold,
		ProgressByteDelta:  download.DefaultProgressByteDelta,
		DefaultShareExpiry: download.DefaultShareExpiry,
		MaxShareExpiry:     download.MaxShareExpiry,
	}
	for _, opt := range opts {
		opt(&clientCfg)
	}

	if clientCfg.Bucket == "" {
		return nil, errors.NewError("client initialization", errors.ErrInvalidPath).
			WithMessage("bucket name is required")
	}

	awsCfg, err := loadAWSConfig(ctx, &clientCfg)
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}

	var s3Opts []func(*s3.Options)
	if clientCfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(clientCfg.Endpoint)
		})
	}
	if clientCfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s3Client := s3.NewFromConfig(awsCfg, s3Opts...)

	return newWithClients(
		clientCfg,
		s3Client,
		s3.NewPresignClient(s3Client),
		sts.NewFromConfig(awsCfg),
	), nil
}

// NewWithClients creates a Client around pre-built API implementations.
// This is primarily used for testing with mocked clients.
func NewWithClients(
	s3Client s3api.S3API,
	presigner s3api.PresignAPI,
	stsClient s3api.STSAPI,
	opts ...s3types.Option,
) *Client {
	clientCfg := s3types.ClientConfig{
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           8 * 1024 * 1024,
		PartConcurrency:    4,
		BatchConcurrency:   DefaultBatchConcurrency,
		PresignThreshold:   DefaultPresignThreshold,
		ProgressByteDelta:  download.DefaultProgressByteDelta,
		DefaultShareExpiry: download.DefaultShareExpiry,
		MaxShareExpiry:     download.MaxShareExpiry,
	}
	for _, opt := range opts {
		opt(&clientCfg)
	}
	return newWithClients(clientCfg, s3Client, presigner, stsClient)
}

// newWithClients wires the engines off the resolved configuration.
func newWithClients(
	cfg s3types.ClientConfig,
	s3Client s3api.S3API,
	presigner s3api.PresignAPI,
	stsClient s3api.STSAPI,
) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	policies := make(map[s3types.OpCategory]*retry.Policy, len(s3types.Categories()))
	for _, cat := range s3types.Categories() {
		policies[cat] = buildPolicy(cfg.Retry[cat])
	}

	limiter := ratelimit.New(cfg.RateLimits)

	c := &Client{
		cfg:       cfg,
		s3Client:  s3Client,
		stsClient: stsClient,
		limiter:   limiter,
		policies:  policies,
		logger:    logger,
	}

	c.lister = list.New(s3Client, cfg.Bucket, limiter, policies[s3types.OpList], logger)
	c.uploader = upload.New(s3Client, cfg.Bucket, limiter, policies[s3types.OpUpload], logger, upload.Config{
		MultipartThreshold: cfg.MultipartThreshold,
		PartSize:           cfg.PartSize,
		PartConcurrency:    cfg.PartConcurrency,
		MaxObjectSize:      cfg.MaxObjectSize,
	})
	c.downloader = download.New(
		s3Client, presigner, cfg.HTTPClient, cfg.Bucket,
		limiter, policies[s3types.OpDownload], logger,
		download.Config{
			PresignThreshold:  cfg.PresignThreshold,
			ProgressByteDelta: cfg.ProgressByteDelta,
			DefaultExpiry:     cfg.DefaultShareExpiry,
			MaxExpiry:         cfg.MaxShareExpiry,
		},
	)
	c.deleter = delete.New(s3Client, cfg.Bucket, limiter, policies[s3types.OpDelete], logger)
	c.renamer = rename.New(
		s3Client, cfg.Bucket, limiter, policies[s3types.OpCopy], logger,
		c.lister, c.deleter, cfg.BatchConcurrency,
	)

	return c
}

// loadAWSConfig resolves the AWS configuration from options or the
// default chain.
func loadAWSConfig(ctx context.Context, clientCfg *s3types.ClientConfig) (aws.Config, error) {
	if clientCfg.CustomAWSConfig != nil {
		return *clientCfg.CustomAWSConfig, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if clientCfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(clientCfg.Region))
	}
	if clientCfg.AccessKeyID != "" && clientCfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				clientCfg.AccessKeyID,
				clientCfg.SecretAccessKey,
				clientCfg.SessionToken,
			),
		))
	}
	if clientCfg.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(clientCfg.HTTPClient))
	}

	// The SDK's own retryer is left at defaults; the engine retries at
	// the operation layer where attempts can be logged per category.
	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// buildPolicy converts a retry configuration into an executor policy,
// falling back to the engine default for unset fields.
func buildPolicy(rc s3types.RetryConfig) *retry.Policy {
	p := *retry.DefaultPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		p.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	if rc.JitterFraction > 0 {
		p.JitterFraction = rc.JitterFraction
	}
	return &p
}

// ready guards against use of a nil or zero Client.
func (c *Client) ready(op string) error {
	if c == nil || c.s3Client == nil {
		return errors.NewError(op, errors.ErrNotInitialized)
	}
	return nil
}

// Bucket returns the bucket this client is bound to.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.cfg.Bucket
}

// Preflight verifies the configuration end to end: the credentials
// resolve to an identity and the bucket is reachable with them. Run it
// once after construction, before exposing the client to callers.
func (c *Client) Preflight(ctx context.Context) error {
	if err := c.ready("preflight"); err != nil {
		return err
	}

	permit, err := c.limiter.Acquire(ctx, s3types.OpStat)
	if err != nil {
		return err
	}
	defer permit.Release()

	policy := c.policies[s3types.OpStat]

	if c.stsClient != nil {
		err = retry.Do(ctx, c.logger, "getCallerIdentity", policy, func(ctx context.Context) error {
			_, callErr := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			return callErr
		})
		if err != nil {
			return errors.NewError("preflight", errors.FromStore(err)).
				WithMessage("credential check failed")
		}
	}

	err = retry.Do(ctx, c.logger, "headBucket", policy, func(ctx context.Context) error {
		_, callErr := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(c.cfg.Bucket),
		})
		return callErr
	})
	if err != nil {
		return errors.NewError("preflight", errors.FromStore(err)).
			WithBucket(c.cfg.Bucket).
			WithMessage("bucket check failed")
	}
	return nil
}

// Exists reports whether an object exists at the given path.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	if err := c.ready("exists"); err != nil {
		return false, err
	}
	key, err := keypath.Sanitize(path)
	if err != nil {
		return false, err
	}

	_, err = c.headObject(ctx, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ObjectMetadata returns the HEAD metadata for an object.
func (c *Client) ObjectMetadata(ctx context.Context, path string) (*s3types.ObjectInfo, error) {
	if err := c.ready("objectMetadata"); err != nil {
		return nil, err
	}
	key, err := keypath.Sanitize(path)
	if err != nil {
		return nil, err
	}
	return c.headObject(ctx, key)
}

// headObject performs one HeadObject under a stat permit.
func (c *Client) headObject(ctx context.Context, key string) (*s3types.ObjectInfo, error) {
	permit, err := c.limiter.Acquire(ctx, s3types.OpStat)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	var output *s3.HeadObjectOutput
	err = retry.Do(ctx, c.logger, "headObject", c.policies[s3types.OpStat], func(ctx context.Context) error {
		var callErr error
		output, callErr = c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.cfg.Bucket),
			Key:    aws.String(key),
		})
		return callErr
	})
	if err != nil {
		return nil, errors.NewObjectError("headObject", c.cfg.Bucket, key, errors.FromStore(err))
	}

	return &s3types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		ContentType:  aws.ToString(output.ContentType),
		LastModified: aws.ToTime(output.LastModified),
		ETag:         aws.ToString(output.ETag),
	}, nil
}
