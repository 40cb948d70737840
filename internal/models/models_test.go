package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	kept := BaseModel{ID: "fixed"}
	require.NoError(t, kept.BeforeCreate(nil))
	require.Equal(t, "fixed", kept.ID)
}

func TestUserOnlineTableName(t *testing.T) {
	require.Equal(t, "user_online", UserOnline{}.TableName())
}

func TestFamilyKeyFor(t *testing.T) {
	require.Equal(t, NoFamily, FamilyKeyFor(nil))

	id := "fam-1"
	require.Equal(t, "fam-1", FamilyKeyFor(&id))
}

func TestUserHasFamily(t *testing.T) {
	var nilUser *User
	require.False(t, nilUser.HasFamily())
	require.False(t, (&User{}).HasFamily())

	empty := ""
	require.False(t, (&User{FamilyID: &empty}).HasFamily())

	id := "fam-1"
	require.True(t, (&User{FamilyID: &id}).HasFamily())
}
