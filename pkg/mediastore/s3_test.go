package mediastore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3 accepts single-part uploads
type mockS3 struct {
	bucket string
	key    string
	body   string
	err    error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.bucket, m.key, m.body = *in.Bucket, *in.Key, string(data)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (m *mockS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (m *mockS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (m *mockS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Archive_Store(t *testing.T) {
	client := &mockS3{}
	archive := newS3Archive(client, S3Config{Bucket: "recordings", Directory: "/meetingroom/"})

	location, err := archive.Store(context.Background(), "recordings/m1/f1-a.mp3", strings.NewReader("audio"))
	require.NoError(t, err)

	assert.Equal(t, "recordings", client.bucket)
	assert.Equal(t, "meetingroom/recordings/m1/f1-a.mp3", client.key)
	assert.Equal(t, "audio", client.body)
	assert.NotEmpty(t, location)
}

func TestS3Archive_StoreError(t *testing.T) {
	archive := newS3Archive(&mockS3{err: errors.New("access denied")}, S3Config{Bucket: "b"})

	_, err := archive.Store(context.Background(), "k", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestNewS3Archive_RequiresBucket(t *testing.T) {
	_, err := NewS3Archive(context.Background(), S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrEmptyS3BucketName)
}

func TestRecordingKey(t *testing.T) {
	tests := []struct {
		name      string
		meetingID string
		jobID     string
		fileName  string
		want      string
	}{
		{"with meeting", "m1", "f1", "call.mp3", "recordings/m1/f1-call.mp3"},
		{"without meeting", "", "f1", "call.mp3", "recordings/unassigned/f1-call.mp3"},
		{"strips directories", "m1", "f1", "../../etc/passwd", "recordings/m1/f1-passwd"},
		{"windows path", "m1", "f1", `C:\Users\ana\call.mp3`, "recordings/m1/f1-call.mp3"},
		{"empty name", "m1", "f1", "", "recordings/m1/f1-recording"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecordingKey(tt.meetingID, tt.jobID, tt.fileName))
		})
	}
}
