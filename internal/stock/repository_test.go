package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortOrderWhitelist(t *testing.T) {
	require.Equal(t, "quantity ASC, id ASC", sortOrder("quantity", "asc"))
	require.Equal(t, "updated_at DESC, id DESC", sortOrder("updated_at", "desc"))
	require.Equal(t, "updated_at ASC, id ASC", sortOrder("1; DROP TABLE stocks", ""))
}

func TestWhereBuilderNumbersPlaceholders(t *testing.T) {
	w := &where{}
	w.add("(a ILIKE ? OR b ILIKE ?)", "%x%")
	w.add("category = ?", "Tools")

	require.Equal(t, " WHERE (a ILIKE $1 OR b ILIKE $1) AND category = $2", w.String())
	require.Equal(t, []any{"%x%", "Tools"}, w.args)
	require.Equal(t, "", (&where{}).String())
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `100\%\_off\\`, escapeLike(`100%_off\`))
}
