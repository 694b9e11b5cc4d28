package compensacao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
	"github.com/mercadotc/api/internal/storage"
)

const maxDocumentoBytes = 10 << 20

// Handler orquestra as rotas de compensação.
type Handler struct {
	service  *Service
	uploader storage.Uploader
}

func NewHandler(service *Service, uploader storage.Uploader) *Handler {
	return &Handler{service: service, uploader: uploader}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/compensacoes", func(r chi.Router) {
		r.Get("/", h.handleListar)
		r.Post("/", h.handleCriar)
		r.Post("/simular", h.handleSimular)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/submeter", h.handleSubmeter)
		r.Post("/{id}/cancelar", h.handleCancelar)
		r.Post("/{id}/documentos", h.handleDocumento)
		r.With(httpmiddleware.RequireAnalista).Post("/{id}/decidir", h.handleDecidir)
		r.With(httpmiddleware.RequireGestor).Post("/{id}/processar", h.handleProcessar)
	})
}

type itemRequest struct {
	ID    string  `json:"id"`
	Valor *string `json:"valor,omitempty"`
}

type criarCompensacaoRequest struct {
	Politica   string        `json:"politica"`
	Prioridade int           `json:"prioridade"`
	Creditos   []itemRequest `json:"creditos"`
	Debitos    []itemRequest `json:"debitos"`
}

func (h *Handler) handleCriar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID, ator, ok := h.identidade(w, ctx)
	if !ok {
		return
	}

	var req criarCompensacaoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	creditos, err := parseItens(req.Creditos)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	debitos, err := parseItens(req.Debitos)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	comp, err := h.service.Criar(ctx, NovaCompensacaoInput{
		EmpresaID:  empresaID,
		CriadoPor:  ator,
		Politica:   Politica(req.Politica),
		Prioridade: req.Prioridade,
		Creditos:   creditos,
		Debitos:    debitos,
	})
	if err != nil {
		if errors.Is(err, ErrValidacao) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
			return
		}
		writeInternalError(w, err)
		return
	}

	logRequest(ctx, "POST /compensacoes", start)
	writeJSON(w, http.StatusCreated, map[string]any{"compensacao": comp})
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return
	}

	status := StatusRequest(r.URL.Query().Get("status"))
	compensacoes, err := h.service.Listar(ctx, empresaID, status)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	logRequest(ctx, "GET /compensacoes", start)
	writeJSON(w, http.StatusOK, map[string]any{"compensacoes": compensacoes})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.comRequisicao(w, r, func(ctx context.Context, empresaID, id uuid.UUID) (*CompensacaoRequest, error) {
		return h.service.Get(ctx, empresaID, id)
	})
}

func (h *Handler) handleSubmeter(w http.ResponseWriter, r *http.Request) {
	h.comRequisicao(w, r, h.service.SubmeterAnalise)
}

func (h *Handler) handleCancelar(w http.ResponseWriter, r *http.Request) {
	h.comRequisicao(w, r, h.service.Cancelar)
}

type decidirRequest struct {
	Aprovar    bool   `json:"aprovar"`
	Observacao string `json:"observacao,omitempty"`
}

func (h *Handler) handleDecidir(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID, ator, ok := h.identidade(w, ctx)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var req decidirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	comp, err := h.service.Decidir(ctx, empresaID, id, ator, req.Aprovar)
	if err != nil && !errors.Is(err, ErrAlocacaoVazia) {
		writeErroCompensacao(w, err)
		return
	}

	resposta := map[string]any{"compensacao": comp}
	if errors.Is(err, ErrAlocacaoVazia) {
		resposta["aviso"] = ErrAlocacaoVazia.Error()
	}

	logRequest(ctx, "POST /compensacoes/decidir", start)
	writeJSON(w, http.StatusOK, resposta)
}

func (h *Handler) handleProcessar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID, ator, ok := h.identidade(w, ctx)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	comp, err := h.service.Processar(ctx, empresaID, id, ator)
	if err != nil {
		writeErroCompensacao(w, err)
		return
	}

	logRequest(ctx, "POST /compensacoes/processar", start)
	writeJSON(w, http.StatusOK, map[string]any{"compensacao": comp})
}

type simularRequest struct {
	Titulos    []string   `json:"titulos"`
	Obrigacoes []string   `json:"obrigacoes"`
	Politica   string     `json:"politica"`
	Restricoes Restricoes `json:"restricoes"`
}

func (h *Handler) handleSimular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return
	}

	var req simularRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	titulos, err := parseIDs(req.Titulos)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	obrigacoes, err := parseIDs(req.Obrigacoes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	resultado, err := h.service.Simular(ctx, SimulacaoInput{
		EmpresaID:    empresaID,
		TituloIDs:    titulos,
		ObrigacaoIDs: obrigacoes,
		Politica:     Politica(req.Politica),
		Restricoes:   req.Restricoes,
	})
	if err != nil {
		writeErroCompensacao(w, err)
		return
	}

	logRequest(ctx, "POST /compensacoes/simular", start)
	writeJSON(w, http.StatusOK, map[string]any{"simulacao": resultado})
}

func (h *Handler) handleDocumento(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID, ator, ok := h.identidade(w, ctx)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := r.ParseMultipartForm(maxDocumentoBytes); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "formulário inválido", nil)
		return
	}
	file, header, err := r.FormFile("arquivo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "arquivo obrigatório", nil)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxDocumentoBytes))
	if err != nil {
		writeInternalError(w, err)
		return
	}

	upload, err := h.uploader.Upload(ctx, storage.UploadInput{
		Key:         fmt.Sprintf("compensacoes/%s/%s%s", id, uuid.New(), path.Ext(header.Filename)),
		Body:        body,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeInternalError(w, err)
		return
	}

	doc, err := h.service.AnexarDocumento(ctx, empresaID, id, header.Filename, upload.URL, ator)
	if err != nil {
		writeErroCompensacao(w, err)
		return
	}

	logRequest(ctx, "POST /compensacoes/documentos", start)
	writeJSON(w, http.StatusCreated, map[string]any{"documento": doc})
}

func (h *Handler) comRequisicao(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*CompensacaoRequest, error)) {
	ctx := r.Context()
	start := time.Now()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	comp, err := fn(ctx, empresaID, id)
	if err != nil {
		writeErroCompensacao(w, err)
		return
	}

	logRequest(ctx, r.Method+" "+r.URL.Path, start)
	writeJSON(w, http.StatusOK, map[string]any{"compensacao": comp})
}

// identidade extrai empresa e ator do contexto autenticado.
func (h *Handler) identidade(w http.ResponseWriter, ctx context.Context) (uuid.UUID, uuid.UUID, bool) {
	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return uuid.Nil, uuid.Nil, false
	}
	ator, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sessão inválida", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return empresaID, ator, true
}

func writeErroCompensacao(w http.ResponseWriter, err error) {
	var conflito *ConflitoSaldo
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "compensação não encontrada", nil)
	case errors.Is(err, ErrValidacao), errors.Is(err, ErrPoolExcedido):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrTransicaoInvalida), errors.Is(err, ErrConflitoStatus), errors.As(err, &conflito):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		writeInternalError(w, err)
	}
}

func parseItens(itens []itemRequest) ([]ItemCompensacaoInput, error) {
	out := make([]ItemCompensacaoInput, 0, len(itens))
	for _, item := range itens {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			return nil, fmt.Errorf("id inválido: %s", item.ID)
		}
		input := ItemCompensacaoInput{ID: id}
		if item.Valor != nil {
			valor, err := decimal.NewFromString(*item.Valor)
			if err != nil {
				return nil, fmt.Errorf("valor inválido para %s", item.ID)
			}
			input.Valor = &valor
		}
		out = append(out, input)
	}
	return out, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("id inválido: %s", s)
		}
		out = append(out, id)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "error": nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  nil,
		"error": map[string]any{"code": code, "message": message, "details": details},
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("compensacao: erro interno")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, rota string, start time.Time) {
	event := log.Info().Str("rota", rota).Dur("duracao", time.Since(start))
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		event = event.Str("request_id", reqID)
	}
	event.Msg("compensacao_request")
}
