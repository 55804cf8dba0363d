package infrastructure

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/mediagrab/internal/domain"
)

type fakeUploader struct {
	key         string
	bucket      string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{}, nil
}

func TestS3Library_Publish(t *testing.T) {
	up := &fakeUploader{}
	lib := newS3Library(up, "media", "/clips/")
	src := writeSource(t, []byte("payload"))

	location, err := lib.Publish(context.Background(), src, "My: Clip.mp4", "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, "s3://media/clips/My Clip.mp4", location)
	assert.Equal(t, "media", up.bucket)
	assert.Equal(t, "clips/My Clip.mp4", up.key)
	assert.Equal(t, "video/mp4", up.contentType)
	assert.Equal(t, []byte("payload"), up.body)
}

func TestS3Library_NoPrefix(t *testing.T) {
	up := &fakeUploader{}
	lib := newS3Library(up, "media", "")
	src := writeSource(t, []byte("payload"))

	location, err := lib.Publish(context.Background(), src, "clip.mp4", "")
	require.NoError(t, err)
	assert.Equal(t, "s3://media/clip.mp4", location)
	assert.Empty(t, up.contentType)
}

func TestS3Library_UploadError(t *testing.T) {
	boom := errors.New("access denied")
	lib := newS3Library(&fakeUploader{err: boom}, "media", "")
	src := writeSource(t, []byte("payload"))

	_, err := lib.Publish(context.Background(), src, "clip.mp4", "video/mp4")
	assert.ErrorIs(t, err, boom)
}

func TestNewS3Library_RequiresBucket(t *testing.T) {
	_, err := NewS3Library(context.Background(), &domain.LibraryConfig{Backend: "s3"})
	assert.Error(t, err)
}
