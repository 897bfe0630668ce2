package points

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rate = decimal.RequireFromString("0.10")

func TestPool(t *testing.T) {
	assert.True(t, Pool(decimal.NewFromInt(2000), rate).Equal(decimal.NewFromInt(200)))
	assert.True(t, Pool(decimal.RequireFromString("1234.56"), rate).Equal(decimal.RequireFromString("123.456")))
}

func TestShareSumsToPool(t *testing.T) {
	pool := Pool(decimal.NewFromInt(1000), rate)

	for _, n := range []int{1, 2, 4, 5} {
		share, err := Share(pool, n)
		require.NoError(t, err)
		sum := share.Mul(decimal.NewFromInt(int64(n)))
		assert.True(t, sum.Equal(decimal.NewFromInt(100)), "n=%d sum=%s", n, sum)
	}

	// Thirds do not terminate; the shortfall is below the share precision
	// and disappears at display precision.
	share, err := Share(pool, 3)
	require.NoError(t, err)
	sum := share.Mul(decimal.NewFromInt(3))
	diff := decimal.NewFromInt(100).Sub(sum)
	assert.True(t, diff.LessThan(decimal.New(1, -SharePrecision+1)))
	assert.Equal(t, "100.00", Display(sum))
}

func TestShareIsDeterministic(t *testing.T) {
	pool := Pool(decimal.RequireFromString("2999.99"), rate)
	a, _ := Share(pool, 3)
	b, _ := PerGuarantor(decimal.RequireFromString("2999.99"), rate, 3)
	assert.True(t, a.Equal(b))
}

func TestShareRejectsZeroGuarantors(t *testing.T) {
	_, err := Share(decimal.NewFromInt(100), 0)
	assert.Error(t, err)
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "33.33", Display(decimal.RequireFromString("33.333333333333333333")))
	assert.Equal(t, "66.67", Display(decimal.RequireFromString("66.666666666666666667")))
	assert.Equal(t, "0.00", Display(decimal.Zero))
}

func TestParseRate(t *testing.T) {
	r, err := ParseRate("0.10")
	require.NoError(t, err)
	assert.True(t, r.Equal(rate))

	for _, bad := range []string{"", "abc", "0", "-0.1", "1.5"} {
		_, err := ParseRate(bad)
		assert.Error(t, err, bad)
	}
}
