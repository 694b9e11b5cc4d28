package mercado

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
	"github.com/mercadotc/api/internal/titulo"
	"github.com/mercadotc/api/internal/util"
)

// Handler orquestra as rotas do mercado secundário.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/mercado", func(r chi.Router) {
		r.Get("/anuncios", h.handleVitrine)
		r.Post("/anuncios", h.handleAnunciar)
		r.Post("/anuncios/{id}/cancelar", h.handleCancelar)
		r.Get("/anuncios/{id}/ofertas", h.handleOfertas)
		r.Post("/anuncios/{id}/ofertas", h.handleOfertar)
		r.Post("/anuncios/{id}/ofertas/{ofertaID}/aceitar", h.handleAceitar)
	})
}

type anunciarRequest struct {
	TituloID string `json:"titulo_id"`
	Tipo     string `json:"tipo"`
	Preco    string `json:"preco_pedido"`
}

func (h *Handler) handleAnunciar(w http.ResponseWriter, r *http.Request) {
	empresaID := httpmiddleware.EmpresaUUID(r.Context())
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada")
		return
	}

	var req anunciarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido")
		return
	}

	tituloID, err := uuid.Parse(req.TituloID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "titulo_id inválido")
		return
	}
	preco, err := util.ParseValor(req.Preco, "preço pedido")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	a, err := h.service.Anunciar(r.Context(), NovoAnuncioInput{
		EmpresaID:   empresaID,
		TituloID:    tituloID,
		Tipo:        TipoAnuncio(req.Tipo),
		PrecoPedido: preco,
	})
	if err != nil {
		writeErroMercado(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"anuncio": a})
}

func (h *Handler) handleVitrine(w http.ResponseWriter, r *http.Request) {
	anuncios, err := h.service.Vitrine(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anuncios": anuncios})
}

func (h *Handler) handleCancelar(w http.ResponseWriter, r *http.Request) {
	empresaID := httpmiddleware.EmpresaUUID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "parâmetros inválidos")
		return
	}

	if err := h.service.CancelarAnuncio(r.Context(), empresaID, id); err != nil {
		writeErroMercado(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type ofertarRequest struct {
	Valor string `json:"valor"`
}

func (h *Handler) handleOfertar(w http.ResponseWriter, r *http.Request) {
	empresaID := httpmiddleware.EmpresaUUID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "parâmetros inválidos")
		return
	}

	var req ofertarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido")
		return
	}
	valor, err := util.ParseValor(req.Valor, "valor da oferta")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	o, err := h.service.Ofertar(r.Context(), id, empresaID, valor)
	if err != nil {
		writeErroMercado(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"oferta": o})
}

func (h *Handler) handleOfertas(w http.ResponseWriter, r *http.Request) {
	empresaID := httpmiddleware.EmpresaUUID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "parâmetros inválidos")
		return
	}

	ofertas, err := h.service.Ofertas(r.Context(), empresaID, id)
	if err != nil {
		writeErroMercado(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ofertas": ofertas})
}

func (h *Handler) handleAceitar(w http.ResponseWriter, r *http.Request) {
	empresaID := httpmiddleware.EmpresaUUID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	ofertaID, err2 := uuid.Parse(chi.URLParam(r, "ofertaID"))
	if err != nil || err2 != nil || empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "parâmetros inválidos")
		return
	}

	o, err := h.service.Aceitar(r.Context(), empresaID, id, ofertaID)
	if err != nil {
		writeErroMercado(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"oferta": o})
}

func writeErroMercado(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, titulo.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "recurso não encontrado")
	case errors.Is(err, ErrValidacao):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error())
	case errors.Is(err, ErrAnuncioFechado), errors.Is(err, ErrTituloIndisponivel), errors.Is(err, ErrOfertaPropria):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		writeInternalError(w, err)
	}
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
	log.Error().Err(err).Msg("mercado: erro interno")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
}
