package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "100.00 INR", Format(10000, "INR"))
	assert.Equal(t, "0.05 INR", Format(5, "inr"))
	assert.Equal(t, "15000 IDR", Format(15000, "IDR"))
}

func TestParseMajor(t *testing.T) {
	got, err := ParseMajor("10000.00", "IDR")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got)

	got, err = ParseMajor("99.95", "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(9995), got)

	_, err = ParseMajor("10.005", "INR")
	assert.Error(t, err)

	_, err = ParseMajor("ten", "INR")
	assert.Error(t, err)
}

func TestToGatewayUnits(t *testing.T) {
	got, err := ToGatewayUnits(25000, "IDR")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), got)

	got, err = ToGatewayUnits(10000, "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	_, err = ToGatewayUnits(10050, "INR")
	assert.Error(t, err)
}
