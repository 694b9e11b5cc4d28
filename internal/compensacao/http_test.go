package compensacao

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
	"github.com/mercadotc/api/internal/storage"
)

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	return &storage.UploadResult{URL: "https://cdn.local/" + input.Key}, nil
}

func withIdentidade(req *http.Request, empresaID uuid.UUID, roles ...string) *http.Request {
	ctx := req.Context()
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeySubject, uuid.New().String())
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyRoles, roles)
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyEmpresa, empresaID.String())
	return req.WithContext(ctx)
}

func executar(t *testing.T, h *Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.ServeHTTP(rec, req)
	return rec
}

func corpoJSON(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestHandlerFluxoCompleto(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	handler := NewHandler(svc, stubUploader{})
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	// Criação.
	payload := map[string]any{
		"politica": "VALOR",
		"creditos": []map[string]any{{"id": tit.ID.String()}},
		"debitos":  []map[string]any{{"id": obr.ID.String()}},
	}
	req := withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes", corpoJSON(t, payload)), empresa)
	rec := executar(t, handler, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var criada struct {
		Data struct {
			Compensacao CompensacaoRequest `json:"compensacao"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &criada))
	id := criada.Data.Compensacao.ID.String()
	assert.Equal(t, StatusPendente, criada.Data.Compensacao.Status)

	// Listagem.
	req = withIdentidade(httptest.NewRequest(http.MethodGet, "/compensacoes?status=PENDENTE", nil), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Submissão para análise.
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/submeter", nil), empresa)
	rec = executar(t, handler, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Decisão exige papel de analista.
	decisao := map[string]any{"aprovar": true}
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/decidir", corpoJSON(t, decisao)), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/decidir", corpoJSON(t, decisao)), empresa, "ANALISTA")
	rec = executar(t, handler, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Anexo antes do processamento.
	var arquivo bytes.Buffer
	form := multipart.NewWriter(&arquivo)
	parte, err := form.CreateFormFile("arquivo", "laudo.pdf")
	require.NoError(t, err)
	_, err = parte.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/documentos", &arquivo), empresa)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec = executar(t, handler, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Processamento exige papel de gestor: analista não basta.
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/processar", nil), empresa, "ANALISTA")
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/processar", nil), empresa, "GESTOR")
	rec = executar(t, handler, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var processada struct {
		Data struct {
			Compensacao CompensacaoRequest `json:"compensacao"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &processada))
	assert.Equal(t, StatusConcluida, processada.Data.Compensacao.Status)
	require.NotNil(t, processada.Data.Compensacao.Resultado)
	assert.True(t, processada.Data.Compensacao.Resultado.Sucesso)

	// Cancelar depois de concluída é conflito.
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/"+id+"/cancelar", nil), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerSimular(t *testing.T) {
	svc, _, titulos, obrigacoes := ambienteTeste()
	handler := NewHandler(svc, stubUploader{})
	empresa := uuid.New()

	tit := novoTitulo(empresa, 100)
	titulos.itens[tit.ID] = tit
	obr := novaObrigacao(empresa, 60)
	obrigacoes.itens[obr.ID] = obr

	payload := map[string]any{
		"politica":   "PRAZO",
		"titulos":    []string{tit.ID.String()},
		"obrigacoes": []string{obr.ID.String()},
	}
	req := withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/simular", corpoJSON(t, payload)), empresa)
	rec := executar(t, handler, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resposta struct {
		Data struct {
			Simulacao ResultadoSimulacao `json:"simulacao"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resposta))
	assert.True(t, resposta.Data.Simulacao.Possivel)

	// Política desconhecida é 422.
	payload["politica"] = "QUALQUER"
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes/simular", corpoJSON(t, payload)), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerErros(t *testing.T) {
	svc, _, _, _ := ambienteTeste()
	handler := NewHandler(svc, stubUploader{})
	empresa := uuid.New()

	// Sem empresa no contexto.
	req := httptest.NewRequest(http.MethodGet, "/compensacoes", nil)
	rec := executar(t, handler, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Requisição inexistente.
	req = withIdentidade(httptest.NewRequest(http.MethodGet, "/compensacoes/"+uuid.NewString(), nil), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Id malformado.
	req = withIdentidade(httptest.NewRequest(http.MethodGet, "/compensacoes/nao-e-uuid", nil), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Criação referenciando item inexistente é 422.
	payload := map[string]any{
		"politica": "VALOR",
		"creditos": []map[string]any{{"id": uuid.NewString()}},
		"debitos":  []map[string]any{{"id": uuid.NewString()}},
	}
	req = withIdentidade(httptest.NewRequest(http.MethodPost, "/compensacoes", corpoJSON(t, payload)), empresa)
	rec = executar(t, handler, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
