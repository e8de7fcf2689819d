package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cbout22/assetsync/internal/auth"
	"github.com/cbout22/assetsync/internal/fetch"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 reads an R2 (or any S3-compatible) bucket.
type S3 struct {
	client  S3API
	bucket  string
	missing []string
}

// NewS3 builds an S3 bucket from credentials. When credentials are
// incomplete the returned bucket still works as a Fetcher but fails every
// fetch with fetch.ReasonMissingCredentials.
func NewS3(creds *auth.Credentials, bucket string) *S3 {
	if bucket == "" {
		bucket = creds.Bucket
	}

	missing := creds.Missing()
	if bucket == "" {
		missing = append(missing, "R2_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return &S3{bucket: bucket, missing: missing}
	}

	client := s3.New(s3.Options{
		Region:           "auto",
		BaseEndpoint:     aws.String(creds.Endpoint()),
		Credentials:      credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		UsePathStyle:     true,
		RetryMaxAttempts: 1,
	})
	return &S3{client: client, bucket: bucket}
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (b *S3) credentialsError(source string) error {
	if len(b.missing) == 0 {
		return nil
	}
	return fetch.NewError(fetch.ReasonMissingCredentials, source,
		fmt.Errorf("set %s", strings.Join(b.missing, ", ")))
}

// Fetch downloads the object stored under key.
func (b *S3) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := b.credentialsError(key); err != nil {
		return nil, err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fetch.Classify(key, err)
	}
	return data, nil
}

// List returns every file object below prefix, following pagination.
func (b *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := b.credentialsError(prefix); err != nil {
		return nil, goerr.Wrap(err, "cannot list bucket", goerr.V("bucket", b.bucket))
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []ObjectInfo
	pager := s3.NewListObjectsV2Paginator(b.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, goerr.Wrap(classifyS3(prefix, err), "failed to list bucket",
				goerr.V("bucket", b.bucket),
				goerr.V("prefix", prefix),
			)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isObjectKey(key) {
				continue
			}
			objects = append(objects, ObjectInfo{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	return objects, nil
}

var (
	s3NotFoundCodes  = []string{"NoSuchKey", "NotFound", "NoSuchBucket"}
	s3ForbiddenCodes = []string{"AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Unauthorized"}
	s3QuotaCodes     = []string{"QuotaExceeded", "ServiceQuotaExceeded", "InsufficientStorage", "StorageQuotaExceeded"}
)

func hasCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// classifyS3 maps SDK errors onto fetch reasons.
func classifyS3(key string, err error) *fetch.Error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fetch.NewError(fetch.ReasonNotFound, key, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case hasCode(s3NotFoundCodes, code):
			return fetch.NewError(fetch.ReasonNotFound, key, err)
		case hasCode(s3ForbiddenCodes, code):
			return fetch.NewError(fetch.ReasonForbidden, key, err)
		case hasCode(s3QuotaCodes, code):
			return fetch.NewError(fetch.ReasonStorageQuota, key, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		fe := &fetch.Error{Reason: fetch.ReasonHTTPStatus, Source: key, Status: status, Err: err}
		switch status {
		case http.StatusNotFound:
			fe.Reason = fetch.ReasonNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			fe.Reason = fetch.ReasonForbidden
		case http.StatusInsufficientStorage:
			fe.Reason = fetch.ReasonStorageQuota
		}
		return fe
	}

	return fetch.Classify(key, err)
}
