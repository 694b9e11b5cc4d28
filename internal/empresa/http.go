package empresa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
)

// Handler orquestra as rotas administrativas de empresas.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/empresas", func(r chi.Router) {
		r.Get("/", h.handleListar)
		r.Get("/{id}", h.handleGet)
		r.With(httpmiddleware.RequireGestor).Post("/", h.handleCriar)
		r.With(httpmiddleware.RequireGestor).Post("/{id}/desativar", h.handleDesativar)
		r.With(httpmiddleware.RequireGestor).Post("/{id}/reativar", h.handleReativar)
	})
}

type criarRequest struct {
	CNPJ         string `json:"cnpj"`
	RazaoSocial  string `json:"razao_social"`
	NomeFantasia string `json:"nome_fantasia"`
	Email        string `json:"email"`
	UF           string `json:"uf"`
}

func (h *Handler) handleCriar(w http.ResponseWriter, r *http.Request) {
	var req criarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido")
		return
	}

	e, err := h.service.Criar(r.Context(), NovaEmpresaInput{
		CNPJ:         req.CNPJ,
		RazaoSocial:  req.RazaoSocial,
		NomeFantasia: req.NomeFantasia,
		Email:        req.Email,
		UF:           req.UF,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"empresa": e})
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	empresas, err := h.service.Listar(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"empresas": empresas})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido")
		return
	}

	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "empresa não encontrada")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"empresa": e})
}

func (h *Handler) handleDesativar(w http.ResponseWriter, r *http.Request) {
	h.mudarAtivacao(w, r, h.service.Desativar)
}

func (h *Handler) handleReativar(w http.ResponseWriter, r *http.Request) {
	h.mudarAtivacao(w, r, h.service.Reativar)
}

func (h *Handler) mudarAtivacao(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido")
		return
	}

	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "empresa não encontrada")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "error": nil})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":  nil,
		"error": map[string]any{"code": code, "message": message, "details": nil},
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("empresa: erro interno")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
}
