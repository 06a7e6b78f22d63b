package pagination

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDTokens(t *testing.T) {
	token := EncodeID(1234567890)
	id, err := DecodeID(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1234567890), id)

	id, err = DecodeID("  ")
	require.NoError(t, err)
	assert.Zero(t, id)

	for _, bad := range []string{"%%%", "not-a-token"} {
		_, err = DecodeID(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
	negative, err := EncodeCursor(Cursor{ID: "-4"})
	require.NoError(t, err)
	_, err = DecodeID(negative)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultSize, Size(0))
	assert.Equal(t, 7, Size(7))
	assert.Equal(t, MaxSize, Size(10_000))
}

func TestPage(t *testing.T) {
	type row struct{ ID snowflake.ID }
	rows := []*row{{ID: 30}, {ID: 20}, {ID: 10}}
	key := func(r *row) snowflake.ID { return r.ID }

	items, info := Page(rows, 2, key)
	require.Len(t, items, 2)
	assert.True(t, info.HasMore)
	next, err := DecodeID(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(20), next)

	items, info = Page(rows, 5, key)
	assert.Len(t, items, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	items, info = Page([]*row{nil, {ID: 1}}, 5, key)
	assert.Len(t, items, 1)
	assert.False(t, info.HasMore)
}
