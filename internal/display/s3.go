package display

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/puzpuzpuz/xsync/v3"
)

type objectAPI interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads each payload and hands out a presigned URL for it. Released
// objects are deleted, so nothing outlives its session.
type S3Store struct {
	client  objectAPI
	presign presignAPI
	bucket  string
	prefix  string
	ttl     time.Duration
	keys    *xsync.MapOf[Ref, string]
}

func NewS3Store(client *s3.Client, bucket, prefix string, ttl time.Duration) *S3Store {
	return newS3Store(client, s3.NewPresignClient(client), bucket, prefix, ttl)
}

func newS3Store(client objectAPI, presign presignAPI, bucket, prefix string, ttl time.Duration) *S3Store {
	return &S3Store{
		client:  client,
		presign: presign,
		bucket:  bucket,
		prefix:  prefix,
		ttl:     ttl,
		keys:    xsync.NewMapOf[Ref, string](),
	}
}

func (s *S3Store) Convert(ctx context.Context, data []byte) (Ref, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	key := s.prefix + id
	contentType := http.DetectContentType(data)

	log := log.FromContextOrDiscard(ctx).WithGroup("s3").With("bucket", s.bucket, "key", key)
	log.Info("uploading image", "content-type", contentType)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presigning image url: %w", err)
	}

	ref := Ref(req.URL)
	s.keys.Store(ref, key)
	return ref, nil
}

func (s *S3Store) Release(ctx context.Context, ref Ref) error {
	key, ok := s.keys.LoadAndDelete(ref)
	if !ok {
		return nil
	}
	log.FromContextOrDiscard(ctx).WithGroup("s3").Info("deleting image", "bucket", s.bucket, "key", key)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
