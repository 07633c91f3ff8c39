package attachment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	objects   map[string][]byte
	buckets   []string
	putErr    error
	deleteErr error
	deleted   []string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.buckets = append(m.buckets, *input.Bucket)
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.buckets = append(m.buckets, *input.Bucket)
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey: key not found")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.deleted = append(m.deleted, *input.Key)
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_RoundTrip(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "transfers", 3, nil)

	ta, err := store.Upload(context.Background(), []byte("sealed backup"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), ta.CDN)
	assert.True(t, strings.HasPrefix(ta.Key, "transfer/"))

	got, err := store.Download(context.Background(), ta)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed backup"), got)
	assert.Equal(t, []string{"transfers", "transfers"}, mock.buckets)
}

func TestStore_UniqueKeys(t *testing.T) {
	store := NewStore(newMockS3(), "b", 3, nil)
	a, err := store.Upload(context.Background(), []byte("x"))
	require.NoError(t, err)
	b, err := store.Upload(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestStore_UploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("AccessDenied")
	_, err := NewStore(mock, "b", 3, nil).Upload(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestStore_DownloadRejects(t *testing.T) {
	store := NewStore(newMockS3(), "b", 3, nil)

	_, err := store.Download(context.Background(), linksync.TransferArchive{CDN: 2, Key: "transfer/" + "00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, ErrWrongCDN)

	for _, key := range []string{"", "transfer/", "../etc/passwd", "transfer/not-a-uuid", "other/00000000-0000-0000-0000-000000000000"} {
		_, err := store.Download(context.Background(), linksync.TransferArchive{CDN: 3, Key: key})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestStore_DownloadMissing(t *testing.T) {
	store := NewStore(newMockS3(), "b", 3, nil)
	_, err := store.Download(context.Background(), linksync.TransferArchive{CDN: 3, Key: "transfer/00000000-0000-0000-0000-000000000000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}
