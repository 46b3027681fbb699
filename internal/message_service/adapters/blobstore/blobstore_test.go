package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBlobStore) Exists(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	url, err := s.Put(ctx, "media/1_a.png", "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, MemoryBaseURL+"media/1_a.png", url)

	ok, err := s.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, ok)

	data, ct, found := s.Get(url)
	require.True(t, found)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, s.Delete(ctx, url))
	assert.ErrorIs(t, s.Delete(ctx, url), domain.ErrBlobNotFound)
	ok, _ = s.Exists(ctx, url)
	assert.False(t, ok)
}

func TestObjectBaseURLAndKeys(t *testing.T) {
	t.Run("AWSVirtualHosted", func(t *testing.T) {
		base := objectBaseURL(S3Config{Region: "eu-west-1", Bucket: "media"})
		assert.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/", base)
	})
	t.Run("CustomEndpointUsesPathStyle", func(t *testing.T) {
		base := objectBaseURL(S3Config{Bucket: "media", Endpoint: "http://minio:9000/"})
		assert.Equal(t, "http://minio:9000/media/", base)
	})
	t.Run("PublicBaseURLWins", func(t *testing.T) {
		base := objectBaseURL(S3Config{Bucket: "media", Endpoint: "http://minio:9000", PublicBaseURL: "https://cdn.example.com"})
		assert.Equal(t, "https://cdn.example.com/", base)
	})
	t.Run("KeyRoundTrip", func(t *testing.T) {
		base := "https://media.s3.eu-west-1.amazonaws.com/"
		key := "media/1700000000000_my photo#1.png"
		url := base + escapeKey(key)
		assert.Equal(t, base+"media/1700000000000_my%20photo%231.png", url)
		got, err := keyFromURL(base, url)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	})
	t.Run("ForeignURLRejected", func(t *testing.T) {
		_, err := keyFromURL("https://media.s3.eu-west-1.amazonaws.com/", "https://elsewhere/x")
		assert.Error(t, err)
		_, err = keyFromURL("https://a/", "https://a/")
		assert.Error(t, err)
	})
}

func TestBreakerStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("OpensAfterConsecutiveFailures", func(t *testing.T) {
		next := new(MockBlobStore)
		backendErr := errors.New("connection refused")
		next.On("Delete", ctx, "u").Return(backendErr).Times(2)

		b := NewBreakerStore(next, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, logger)
		assert.ErrorIs(t, b.Delete(ctx, "u"), backendErr)
		assert.ErrorIs(t, b.Delete(ctx, "u"), backendErr)
		assert.Equal(t, gobreaker.StateOpen, b.State())

		err := b.Delete(ctx, "u")
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		next.AssertExpectations(t)
	})

	t.Run("NotFoundDoesNotTrip", func(t *testing.T) {
		next := new(MockBlobStore)
		next.On("Delete", ctx, "gone").Return(domain.ErrBlobNotFound).Times(3)

		b := NewBreakerStore(next, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, logger)
		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, b.Delete(ctx, "gone"), domain.ErrBlobNotFound)
		}
		assert.Equal(t, gobreaker.StateClosed, b.State())
		next.AssertExpectations(t)
	})

	t.Run("PassesResultsThrough", func(t *testing.T) {
		next := new(MockBlobStore)
		next.On("Put", ctx, "k", "image/png", []byte("x")).Return("url://k", nil).Once()
		next.On("Exists", ctx, "url://k").Return(true, nil).Once()

		b := NewBreakerStore(next, BreakerSettings{}, logger)
		url, err := b.Put(ctx, "k", "image/png", []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "url://k", url)
		ok, err := b.Exists(ctx, "url://k")
		require.NoError(t, err)
		assert.True(t, ok)
		next.AssertExpectations(t)
	})
}
