package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Publisher_Publish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"videos":[]}`), 0o644))

	putter := &fakePutter{}
	p := NewS3PublisherWithClient(putter, "bucket", "data/")

	require.NoError(t, p.Publish(context.Background(), path))
	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	assert.Equal(t, "bucket", aws.ToString(in.Bucket))
	assert.Equal(t, "data/feed.json", aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Equal(t, "no-cache", aws.ToString(in.CacheControl))
	assert.Equal(t, `{"videos":[]}`, putter.bodies[0])
}

func TestS3Publisher_Errors(t *testing.T) {
	p := NewS3PublisherWithClient(&fakePutter{}, "bucket", "")
	err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "channels.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	denied := errors.New("access denied")
	p = NewS3PublisherWithClient(&fakePutter{err: denied}, "bucket", "")
	err = p.Publish(context.Background(), path)
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "s3://bucket/channels.json")
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{})
	assert.Error(t, err)
}
