package compensacao

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadotc/api/internal/titulo"
)

func credito(cat titulo.Categoria, subtipo, uf string) Credito {
	return Credito{
		ID:         "c-" + subtipo + "-" + uf,
		Categoria:  cat,
		Subtipo:    subtipo,
		Jurisdicao: uf,
		Moeda:      "BRL",
		Saldo:      decimal.NewFromInt(1000),
	}
}

func debito(tributo, uf string) Debito {
	return Debito{
		ID:         "d-" + tributo + "-" + uf,
		Tributo:    tributo,
		Jurisdicao: uf,
		Moeda:      "BRL",
		Saldo:      decimal.NewFromInt(500),
		Vencimento: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompatibilidadeICMS(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	res, err := VerificarCompatibilidade(credito(titulo.CategoriaTributario, "ICMS", "SP"), debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.True(t, res.Compativel)

	res, err = VerificarCompatibilidade(credito(titulo.CategoriaTributario, "ICMS", "SP"), debito("ICMS", "RJ"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoJurisdicao, res.Motivo)

	res, err = VerificarCompatibilidade(credito(titulo.CategoriaTributario, "ICMS", "SP"), debito("IRPJ", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoCategoria, res.Motivo)
}

func TestCompatibilidadeFederais(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Crédito de PIS abate qualquer tributo federal, inclusive em outra UF.
	for _, tributo := range []string{"PIS", "COFINS", "IRPJ", "CSLL"} {
		res, err := VerificarCompatibilidade(credito(titulo.CategoriaTributario, "PIS", "SP"), debito(tributo, "MG"), ref)
		require.NoError(t, err)
		assert.True(t, res.Compativel, "PIS contra %s", tributo)
	}

	res, err := VerificarCompatibilidade(credito(titulo.CategoriaTributario, "COFINS", "SP"), debito("ISS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoCategoria, res.Motivo)
}

func TestCompatibilidadeJudicial(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	res, err := VerificarCompatibilidade(credito(titulo.CategoriaJudicial, "ISS", "SP"), debito("ISS", "SP"), ref)
	require.NoError(t, err)
	assert.True(t, res.Compativel)

	// Tributo diferente: precatório não cruza tributo.
	res, err = VerificarCompatibilidade(credito(titulo.CategoriaJudicial, "ISS", "SP"), debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoCategoria, res.Motivo)

	// Jurisdição diferente.
	res, err = VerificarCompatibilidade(credito(titulo.CategoriaJudicial, "ISS", "SP"), debito("ISS", "RJ"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoJurisdicao, res.Motivo)
}

func TestCompatibilidadeCategoriasFlexiveis(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, cat := range []titulo.Categoria{titulo.CategoriaComercial, titulo.CategoriaRural, titulo.CategoriaAmbiental} {
		res, err := VerificarCompatibilidade(credito(cat, "CPR", "GO"), debito("ICMS", "SP"), ref)
		require.NoError(t, err)
		assert.True(t, res.Compativel, "categoria %s", cat)
	}
}

func TestCompatibilidadeCategoriaDesconhecida(t *testing.T) {
	ref := time.Now()
	res, err := VerificarCompatibilidade(credito(titulo.Categoria("EXOTICA"), "X", "SP"), debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoCategoria, res.Motivo)
}

func TestCompatibilidadeRestricoesUniversais(t *testing.T) {
	ref := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	vencido := credito(titulo.CategoriaComercial, "CPR", "GO")
	passado := ref.AddDate(0, -1, 0)
	vencido.Vencimento = &passado
	res, err := VerificarCompatibilidade(vencido, debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoVencido, res.Motivo)

	usd := credito(titulo.CategoriaComercial, "CPR", "GO")
	usd.Moeda = "USD"
	res, err = VerificarCompatibilidade(usd, debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoMoeda, res.Motivo)

	zerado := credito(titulo.CategoriaComercial, "CPR", "GO")
	zerado.Saldo = decimal.Zero
	res, err = VerificarCompatibilidade(zerado, debito("ICMS", "SP"), ref)
	require.NoError(t, err)
	assert.False(t, res.Compativel)
	assert.Equal(t, MotivoSaldoZero, res.Motivo)
}

func TestCompatibilidadeEntradaMalformada(t *testing.T) {
	ref := time.Now()

	semID := credito(titulo.CategoriaTributario, "ICMS", "SP")
	semID.ID = ""
	_, err := VerificarCompatibilidade(semID, debito("ICMS", "SP"), ref)
	assert.Error(t, err)

	semCategoria := credito("", "ICMS", "SP")
	_, err = VerificarCompatibilidade(semCategoria, debito("ICMS", "SP"), ref)
	assert.Error(t, err)

	semTributo := debito("", "SP")
	semTributo.Tributo = "   "
	_, err = VerificarCompatibilidade(credito(titulo.CategoriaTributario, "ICMS", "SP"), semTributo, ref)
	assert.Error(t, err)
}
