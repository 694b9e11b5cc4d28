package titulo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
	"github.com/mercadotc/api/internal/util"
)

// Handler orquestra rotas de títulos de crédito.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/titulos", func(r chi.Router) {
		r.Get("/", h.handleListar)
		r.Post("/", h.handleCriar)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/validar", h.handleValidar)
		r.Post("/{id}/rejeitar", h.handleRejeitar)
		r.Post("/{id}/cancelar", h.handleCancelar)
		r.Post("/{id}/tokenizar", h.handleTokenizar)
	})
}

type criarRequest struct {
	Categoria  string  `json:"categoria"`
	Subtipo    string  `json:"subtipo"`
	Jurisdicao string  `json:"jurisdicao"`
	Valor      string  `json:"valor_nominal"`
	Emissao    string  `json:"emissao"`
	Vencimento *string `json:"vencimento"`
}

func (h *Handler) handleCriar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return
	}

	var req criarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	valor, err := util.ParseValor(req.Valor, "valor nominal")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	emissao := time.Now().UTC()
	if req.Emissao != "" {
		emissao, err = time.Parse("2006-01-02", req.Emissao)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "emissão inválida", nil)
			return
		}
	}

	var vencimento *time.Time
	if req.Vencimento != nil && *req.Vencimento != "" {
		parsed, err := time.Parse("2006-01-02", *req.Vencimento)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "vencimento inválido", nil)
			return
		}
		vencimento = &parsed
	}

	t, err := h.service.Criar(ctx, NovoTituloInput{
		EmpresaID:    empresaID,
		Categoria:    Categoria(req.Categoria),
		Subtipo:      req.Subtipo,
		Jurisdicao:   req.Jurisdicao,
		ValorNominal: valor,
		Emissao:      emissao,
		Vencimento:   vencimento,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}

	logRequest(ctx, "POST /titulos", start)
	writeJSON(w, http.StatusCreated, map[string]any{"titulo": t})
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada", nil)
		return
	}

	status := Status(r.URL.Query().Get("status"))
	titulos, err := h.service.Listar(ctx, empresaID, status)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	logRequest(ctx, "GET /titulos", start)
	writeJSON(w, http.StatusOK, map[string]any{"titulos": titulos})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.comTitulo(w, r, func(ctx context.Context, empresaID, id uuid.UUID) (*Titulo, error) {
		return h.service.Get(ctx, empresaID, id)
	})
}

func (h *Handler) handleValidar(w http.ResponseWriter, r *http.Request) {
	h.comTitulo(w, r, h.service.Validar)
}

func (h *Handler) handleRejeitar(w http.ResponseWriter, r *http.Request) {
	h.comTitulo(w, r, h.service.Rejeitar)
}

func (h *Handler) handleCancelar(w http.ResponseWriter, r *http.Request) {
	h.comTitulo(w, r, h.service.Cancelar)
}

func (h *Handler) handleTokenizar(w http.ResponseWriter, r *http.Request) {
	h.comTitulo(w, r, h.service.Tokenizar)
}

func (h *Handler) comTitulo(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*Titulo, error)) {
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

	t, err := fn(ctx, empresaID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "título não encontrado", nil)
		case errors.Is(err, ErrTransicaoInvalida), errors.Is(err, ErrNaoTokenizavel), errors.Is(err, ErrLedgerRejeitou):
			writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
		default:
			writeInternalError(w, err)
		}
		return
	}

	logRequest(ctx, r.Method+" "+r.URL.Path, start)
	writeJSON(w, http.StatusOK, map[string]any{"titulo": t})
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
	log.Error().Err(err).Msg("titulo: erro interno")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, rota string, start time.Time) {
	event := log.Info().Str("rota", rota).Dur("duracao", time.Since(start))
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		event = event.Str("request_id", reqID)
	}
	event.Msg("titulo_request")
}
