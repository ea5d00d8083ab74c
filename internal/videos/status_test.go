package videos

import (
	"testing"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.VideoStatus
		want     bool
	}{
		{models.VideoQueued, models.VideoProcessing, true},
		{models.VideoQueued, models.VideoCanceled, true},
		{models.VideoQueued, models.VideoCompleted, true},
		{models.VideoQueued, models.VideoFailed, true},
		{models.VideoProcessing, models.VideoFailed, true},
		{models.VideoProcessing, models.VideoQueued, false},
		{models.VideoCompleted, models.VideoFailed, false},
		{models.VideoFailed, models.VideoCanceled, false},
		{models.VideoCanceled, models.VideoProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParameters_Normalize(t *testing.T) {
	cfg := settings.Defaults()

	tests := []struct {
		name    string
		in      Parameters
		want    Parameters
		wantErr string
	}{
		{
			name: "defaults",
			want: Parameters{Duration: 15, AspectRatio: "16:9", Quality: "medium"},
		},
		{
			name: "explicit",
			in:   Parameters{Duration: 30, AspectRatio: " 1:1 ", Style: "modern", Quality: "Low"},
			want: Parameters{Duration: 30, AspectRatio: "1:1", Style: "modern", Quality: "low"},
		},
		{name: "too long", in: Parameters{Duration: 31}, wantErr: "parameters.duration"},
		{name: "negative", in: Parameters{Duration: -1}, wantErr: "parameters.duration"},
		{name: "ratio", in: Parameters{AspectRatio: "4:3"}, wantErr: "parameters.aspect_ratio"},
		{name: "quality", in: Parameters{Quality: "ultra"}, wantErr: "parameters.quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize(cfg)
			if tt.wantErr != "" {
				var appErr *apperr.Error
				require.ErrorAs(t, err, &appErr)
				assert.Contains(t, appErr.Fields, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameters_DefaultRatioFollowsSettings(t *testing.T) {
	cfg := settings.Defaults()
	cfg.SupportedAspectRatios = []string{"9:16"}
	cfg.MaxDurationSec = 8

	got, err := Parameters{}.Normalize(cfg)
	require.NoError(t, err)
	assert.Equal(t, "9:16", got.AspectRatio)
	assert.Equal(t, 8, got.Duration)
}
