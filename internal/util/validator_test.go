package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, ValidateCNPJ("11.222.333/0001-81"))
	assert.NoError(t, ValidateCNPJ("11222333000181"))

	assert.Error(t, ValidateCNPJ(""))
	assert.Error(t, ValidateCNPJ("123"))
	assert.Error(t, ValidateCNPJ("11222333000180"), "dígito verificador errado")
	assert.Error(t, ValidateCNPJ("00000000000000"), "dígitos repetidos")
}

func TestNormalizeCNPJ(t *testing.T) {
	assert.Equal(t, "11222333000181", NormalizeCNPJ("11.222.333/0001-81"))
	assert.Equal(t, "11222333000181", NormalizeCNPJ("11222333000181"))
}

func TestParseValor(t *testing.T) {
	v, err := ParseValor("1234.56", "valor")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("1234.56")))

	// Vírgula decimal é aceita.
	v, err = ParseValor("10,50", "valor")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("10.5")))

	_, err = ParseValor("", "valor")
	assert.Error(t, err)
	_, err = ParseValor("abc", "valor")
	assert.Error(t, err)
	_, err = ParseValor("-5", "valor")
	assert.Error(t, err)
	_, err = ParseValor("0", "valor")
	assert.Error(t, err)
}

func TestRequireString(t *testing.T) {
	assert.NoError(t, RequireString("ok", "campo"))
	assert.Error(t, RequireString("", "campo"))
	assert.Error(t, RequireString("   ", "campo"))
}
