package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config selects where recordings are archived
type S3Config struct {
	Region    string
	Bucket    string
	Directory string
}

var ErrEmptyS3BucketName = errors.New("empty S3 bucket name")

// Archive stores uploaded recordings
type Archive interface {
	// Store uploads body under key and returns the object location
	Store(ctx context.Context, key string, body io.Reader) (string, error)
}

type s3Archive struct {
	bucket    string
	directory string
	service   *manager.Uploader
}

// NewS3Archive creates an archive from the default AWS credential chain
func NewS3Archive(ctx context.Context, config S3Config) (Archive, error) {
	if config.Bucket == "" {
		return nil, ErrEmptyS3BucketName
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return newS3Archive(s3.NewFromConfig(cfg), config), nil
}

func newS3Archive(client manager.UploadAPIClient, config S3Config) *s3Archive {
	return &s3Archive{
		bucket:    config.Bucket,
		directory: strings.Trim(config.Directory, "/"),
		service:   manager.NewUploader(client),
	}
}

func (s *s3Archive) Store(ctx context.Context, key string, body io.Reader) (string, error) {
	uploadKey := key
	if s.directory != "" {
		uploadKey = path.Join(s.directory, key)
	}

	out, err := s.service.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(uploadKey),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", uploadKey, err)
	}

	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, uploadKey), nil
}

// RecordingKey builds the object key of an uploaded recording
func RecordingKey(meetingID, jobID, fileName string) string {
	if meetingID == "" {
		meetingID = "unassigned"
	}

	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "recording"
	}

	return path.Join("recordings", meetingID, jobID+"-"+name)
}
