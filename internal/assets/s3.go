package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the bucket host. Endpoint enables path-style addressing for MinIO and similar.
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Prefix        string
	PublicBaseURL string
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores assets in an S3-compatible bucket.
type S3 struct {
	client  objectAPI
	bucket  string
	prefix  string
	baseURL string
}

// NewS3 builds the client from options; static credentials are used when both keys are set.
func NewS3(ctx context.Context, options S3Options) (*S3, error) {
	if strings.TrimSpace(options.Bucket) == "" {
		return nil, errors.New("assets: s3 bucket is required")
	}
	region := options.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if options.AccessKey != "" && options.SecretKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if options.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(options.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3{
		client:  s3.NewFromConfig(cfg, s3opts...),
		bucket:  options.Bucket,
		prefix:  options.Prefix,
		baseURL: publicBaseURL(options, region),
	}, nil
}

func publicBaseURL(options S3Options, region string) string {
	if options.PublicBaseURL != "" {
		return strings.TrimRight(options.PublicBaseURL, "/")
	}
	if options.Endpoint != "" {
		return strings.TrimRight(options.Endpoint, "/") + "/" + options.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", options.Bucket, region)
}

func (h *S3) Upload(ctx context.Context, upload banners.Upload) (banners.Asset, error) {
	key, err := newObjectKey(h.prefix, upload.FileName, upload.ContentType, upload.Data)
	if err != nil {
		return banners.Asset{}, err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(upload.Data),
	}
	if upload.ContentType != "" {
		input.ContentType = aws.String(upload.ContentType)
	}
	if _, err := h.client.PutObject(ctx, input); err != nil {
		return banners.Asset{}, fmt.Errorf("s3 put object: %w", err)
	}
	return banners.Asset{URL: joinURL(h.baseURL, key), ID: key}, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is checked first
// to report ErrAssetNotFound.
func (h *S3) Delete(ctx context.Context, assetID string) error {
	if !validKey(assetID) {
		return fmt.Errorf("assets: invalid asset id %q", assetID)
	}
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(assetID),
	})
	if isNotFound(err) {
		return banners.ErrAssetNotFound
	}
	if err != nil {
		return fmt.Errorf("s3 head object: %w", err)
	}
	if _, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(assetID),
	}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var responseErr *awshttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound
}
