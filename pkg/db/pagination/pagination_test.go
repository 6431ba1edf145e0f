package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	enc, err := EncodeCursor(Cursor{ID: "123"})
	require.NoError(t, err)

	cur, err := DecodeCursor(enc)
	require.NoError(t, err)
	require.Equal(t, "123", cur.ID)

	_, err = DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestPage(t *testing.T) {
	rows := []string{"a", "b", "c"}

	out, info := Page(rows, 2, func(s string) string { return s })
	require.Equal(t, []string{"a", "b"}, out)
	require.True(t, info.HasMore)

	cur, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "b", cur.ID)

	out, info = Page(rows, 5, func(s string) string { return s })
	require.Len(t, out, 3)
	require.False(t, info.HasMore)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Normalize().Limit)
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Normalize().Limit)
	require.Equal(t, 7, Pagination{Limit: 7}.Normalize().Limit)
}
