package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
)

func TestCategoryForMapsTradingMode(t *testing.T) {
	require.Equal(t, CategorySpot, CategoryFor(domain.ModeSpot))
	require.Equal(t, CategoryLinear, CategoryFor(domain.ModeLeverage))
}

func TestParseCandleRejectsShortRows(t *testing.T) {
	_, ok := parseCandle([]string{"1700000000000", "1", "2"})
	require.False(t, ok)
}

func TestParseCandleParsesValidRow(t *testing.T) {
	c, ok := parseCandle([]string{"1700000000000", "100", "110", "90", "105", "12.5"})
	require.True(t, ok)
	require.True(t, c.Valid())
	require.Equal(t, "105", c.Close.String())
}

func TestHmacSignIsDeterministic(t *testing.T) {
	c := New("key", "secret")
	a := c.hmacSign("message")
	b := c.hmacSign("message")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c.hmacSign("other"))
}

func TestUnauthenticatedClientRejectsSignedCalls(t *testing.T) {
	c := New("", "")
	err := c.TestConnection()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindCredentialsMissing))
}
