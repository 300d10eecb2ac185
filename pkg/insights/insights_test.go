package insights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage/storagetest"
)

func TestStore_AddAndGetRecent(t *testing.T) {
	db := storagetest.New(t)
	store := NewStore(db)
	ctx := context.Background()
	user := storagetest.AddUser(t, db, "reader")

	added, err := store.Add(ctx, user, AddInsightData{Verse: "John 11:35", Content: "Jesus wept, and so may we."})
	require.NoError(t, err)
	assert.Equal(t, "reader", added.AuthorName)

	_, err = store.Add(ctx, user, AddInsightData{Verse: "Psalm 46:10", Content: "Stillness is an act of trust."})
	require.NoError(t, err)

	all, err := store.GetRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Psalm 46:10", all[0].Verse)

	filtered, err := store.GetRecent(ctx, "John 11:35", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, added.Id, filtered[0].Id)

	_, err = store.Add(ctx, rest.MustGetNewUUID(), AddInsightData{Verse: "John 1:1", Content: "In the beginning."})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestAddInsightData_Validate(t *testing.T) {
	assert.NoError(t, AddInsightData{Verse: "John 1:1", Content: "Light."}.Validate())
	assert.Error(t, AddInsightData{Verse: "John 1:1", Content: "   "}.Validate())
	assert.Error(t, AddInsightData{Content: "Light."}.Validate())
}
