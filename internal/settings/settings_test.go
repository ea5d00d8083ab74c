package settings_test

import (
	"testing"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/settings"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newService(t *testing.T) (*settings.Service, *testutil.TestSetup) {
	t.Helper()
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)
	return settings.NewService(tc.Tx, audit.NewRecorder(tc.Tx), testutil.Logger()), tc
}

func TestService_GetDefaults(t *testing.T) {
	svc, _ := newService(t)

	s, err := svc.Get(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(), s)
	assert.True(t, s.SupportsAspectRatio("9:16"))
	assert.False(t, s.SupportsAspectRatio("4:3"))
}

func TestService_GetReadsStoredShapes(t *testing.T) {
	svc, tc := newService(t)

	rows := []models.GlobalSetting{
		{Key: settings.KeyCreditsPerVideo, Value: datatypes.JSON(`{"credits_per_video": 25}`)},
		{Key: settings.KeyMaxDurationSec, Value: datatypes.JSON(`15`)},
		{Key: settings.KeySupportedAspectRatios, Value: datatypes.JSON(`"not a list"`)},
	}
	require.NoError(t, tc.DB.Create(&rows).Error)

	s, err := svc.Get(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(25), s.CreditsPerVideo)
	assert.Equal(t, 15, s.MaxDurationSec)
	assert.Equal(t, settings.Defaults().SupportedAspectRatios, s.SupportedAspectRatios)
}

func TestService_Update(t *testing.T) {
	svc, tc := newService(t)
	ctx := testutil.TestContext(t)

	cost := int64(12)
	s, err := svc.Update(ctx, settings.Patch{CreditsPerVideo: &cost}, tc.Super.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), s.CreditsPerVideo)
	assert.Equal(t, 30, s.MaxDurationSec)

	// Second write to the same key updates in place.
	cost = 15
	_, err = svc.Update(ctx, settings.Patch{CreditsPerVideo: &cost, SupportedAspectRatios: []string{"16:9"}}, tc.Super.UserID)
	require.NoError(t, err)

	s, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), s.CreditsPerVideo)
	assert.Equal(t, []string{"16:9"}, s.SupportedAspectRatios)

	var count int64
	require.NoError(t, tc.DB.Model(&models.AuditLog{}).Where("action = ?", audit.ActionSettingsUpdate).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestService_UpdateValidation(t *testing.T) {
	zero := int64(0)
	long := 3600

	tests := []struct {
		name  string
		patch settings.Patch
		field string
	}{
		{"zero cost", settings.Patch{CreditsPerVideo: &zero}, settings.KeyCreditsPerVideo},
		{"duration too long", settings.Patch{MaxDurationSec: &long}, settings.KeyMaxDurationSec},
		{"empty ratios", settings.Patch{SupportedAspectRatios: []string{}}, settings.KeySupportedAspectRatios},
		{"bad ratio", settings.Patch{SupportedAspectRatios: []string{"wide"}}, settings.KeySupportedAspectRatios},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, tc := newService(t)
			_, err := svc.Update(testutil.TestContext(t), tt.patch, tc.Super.UserID)
			appErr := apperr.From(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}
