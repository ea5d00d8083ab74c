package membership_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Role(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	store := membership.NewStore(tc.Tx)
	ctx := testutil.TestContext(t)

	role, err := store.Role(ctx, tc.Org.ID, tc.User.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = store.Role(ctx, tc.Org.ID, uuid.New())
	assert.ErrorIs(t, err, authz.ErrNotMember)

	t.Run("deleted organization hides membership", func(t *testing.T) {
		require.NoError(t, tc.DB.Delete(tc.Org).Error)
		_, err := store.Role(ctx, tc.Org.ID, tc.User.UserID)
		assert.ErrorIs(t, err, authz.ErrNotMember)
	})
}

func TestStore_AddUpdateRemove(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	store := membership.NewStore(tc.Tx)
	ctx := testutil.TestContext(t)
	profile := testutil.CreateTestProfile(t, tc.DB, models.PlatformRoleNone)

	m, err := store.Add(ctx, tc.Org.ID, profile.UserID, models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)
	require.NotNil(t, m.Profile)
	assert.Equal(t, profile.Email, m.Profile.Email)

	t.Run("one role per pair", func(t *testing.T) {
		_, err := store.Add(ctx, tc.Org.ID, profile.UserID, models.RoleAdmin)
		assert.ErrorIs(t, err, membership.ErrExists)
	})

	t.Run("unknown organization", func(t *testing.T) {
		_, err := store.Add(ctx, uuid.New(), profile.UserID, models.RoleMember)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := store.Add(ctx, tc.Org.ID, uuid.New(), models.Role("owner"))
		assert.ErrorIs(t, err, membership.ErrInvalidRole)
	})

	m, err = store.UpdateRole(ctx, tc.Org.ID, profile.UserID, models.RoleSuperadmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperadmin, m.Role)

	members, err := store.List(ctx, tc.Org.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, store.Remove(ctx, tc.Org.ID, profile.UserID))
	assert.ErrorIs(t, store.Remove(ctx, tc.Org.ID, profile.UserID), membership.ErrNotFound)

	_, err = store.UpdateRole(ctx, tc.Org.ID, profile.UserID, models.RoleAdmin)
	assert.ErrorIs(t, err, membership.ErrNotFound)
}

func TestStore_ForUser(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	store := membership.NewStore(tc.Tx)
	ctx := testutil.TestContext(t)

	other := testutil.CreateTestOrg(t, tc.DB)
	testutil.AddTestMember(t, tc.DB, other.ID, tc.User.UserID, models.RoleMember)

	members, err := store.ForUser(ctx, tc.User.UserID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		require.NotNil(t, m.Organization)
		assert.Equal(t, m.OrganizationID, m.Organization.ID)
	}

	require.NoError(t, tc.DB.Delete(other).Error)
	members, err = store.ForUser(ctx, tc.User.UserID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
