package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hugh/ia-marketing/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{"s3://renders/org/job.mp4", Location{SchemeS3, "renders", "org/job.mp4"}, false},
		{"gs://thumbs/job.jpg", Location{SchemeGCS, "thumbs", "job.jpg"}, false},
		{"https://cdn.example.com/job.mp4", Location{}, true},
		{"s3://bucket-only", Location{}, true},
		{"s3:///key", Location{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

type fakeSigner struct {
	got Location
	ttl time.Duration
}

func (f *fakeSigner) SignGet(_ context.Context, loc Location, ttl time.Duration) (string, error) {
	f.got, f.ttl = loc, ttl
	return "https://signed.example.com/" + loc.Key, nil
}

func TestPresigner_Routes(t *testing.T) {
	gs := &fakeSigner{}
	p := NewPresigner(5 * time.Minute).With(SchemeGCS, gs)
	ctx := context.Background()

	got, err := p.SignedURL(ctx, "https://cdn.example.com/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp4", got)

	got, err = p.SignedURL(ctx, "gs://renders/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/a.mp4", got)
	assert.Equal(t, "renders", gs.got.Bucket)
	assert.Equal(t, 5*time.Minute, gs.ttl)

	_, err = p.SignedURL(ctx, "s3://renders/a.mp4")
	assert.Error(t, err)
}

// Presigning is local computation, so static keys and a custom endpoint are
// enough to check the URL shape without any network.
func TestS3Signer_PresignsPathStyle(t *testing.T) {
	signer, err := NewS3Signer(context.Background(), config.StorageConfig{
		S3Region:          "us-east-1",
		S3Endpoint:        "http://minio.local:9000",
		S3AccessKeyID:     "AKIDEXAMPLE",
		S3SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	raw, err := signer.SignGet(context.Background(), Location{SchemeS3, "renders", "org/job.mp4"}, 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "minio.local:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/renders/org/job.mp4"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
