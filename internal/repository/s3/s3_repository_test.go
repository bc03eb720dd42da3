package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"armory/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	puts          []*s3.PutObjectInput
	bodies        [][]byte
	headErr       error
	createdBucket *s3.CreateBucketInput
}

func (f *fakeObjectAPI) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeObjectAPI) CreateBucket(_ context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdBucket = params
	return &s3.CreateBucketOutput{}, nil
}

func TestBlobStore_UploadFile(t *testing.T) {
	api := &fakeObjectAPI{}
	store := NewBlobStoreWithClient(api, "frames", "us-east-1", logger.Nop())

	err := store.UploadFile(context.Background(), "image_1.jpg", bytes.NewReader([]byte("AAAA")), 4, "image/jpeg")
	require.NoError(t, err)

	require.Len(t, api.puts, 1)
	assert.Equal(t, "frames", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "image_1.jpg", aws.ToString(api.puts[0].Key))
	assert.Equal(t, "image/jpeg", aws.ToString(api.puts[0].ContentType))
	assert.Equal(t, []byte("AAAA"), api.bodies[0])
}

func TestBlobStore_EnsureBucketCreatesMissingBucket(t *testing.T) {
	api := &fakeObjectAPI{headErr: errors.New("not found")}
	store := NewBlobStoreWithClient(api, "frames", "eu-central-1", logger.Nop())

	require.NoError(t, store.ensureBucketExists(context.Background()))
	require.NotNil(t, api.createdBucket)
	assert.Equal(t, "eu-central-1", string(api.createdBucket.CreateBucketConfiguration.LocationConstraint))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://minio.local", endpointURL("minio.local", true))
	assert.Equal(t, "http://already", endpointURL("http://already", true))
}
