package obrigacao

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	httpmiddleware "github.com/mercadotc/api/internal/http/middleware"
)

// Handler orquestra rotas de obrigações fiscais.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/obrigacoes", func(r chi.Router) {
		r.Get("/", h.handleListar)
		r.Post("/", h.handleCriar)
		r.Get("/{id}", h.handleGet)
	})
}

type criarRequest struct {
	Tributo    string `json:"tributo"`
	Esfera     string `json:"esfera"`
	UF         string `json:"uf"`
	Valor      string `json:"valor"`
	Juros      string `json:"juros"`
	Multa      string `json:"multa"`
	Vencimento string `json:"vencimento"`
}

type obrigacaoView struct {
	Obrigacao
	StatusAtual Status `json:"status"`
}

func (h *Handler) handleCriar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada")
		return
	}

	var req criarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido")
		return
	}

	valor, err := decimal.NewFromString(req.Valor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "valor inválido")
		return
	}

	juros, multa := decimal.Zero, decimal.Zero
	if req.Juros != "" {
		if juros, err = decimal.NewFromString(req.Juros); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "juros inválidos")
			return
		}
	}
	if req.Multa != "" {
		if multa, err = decimal.NewFromString(req.Multa); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "multa inválida")
			return
		}
	}

	vencimento, err := time.Parse("2006-01-02", req.Vencimento)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "vencimento inválido")
		return
	}

	o, err := h.service.Criar(ctx, NovaObrigacaoInput{
		EmpresaID:  empresaID,
		Tributo:    req.Tributo,
		Esfera:     Esfera(req.Esfera),
		UF:         req.UF,
		Valor:      valor,
		Juros:      juros,
		Multa:      multa,
		Vencimento: vencimento,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"obrigacao": toView(o)})
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada")
		return
	}

	obrigacoes, err := h.service.Listar(ctx, empresaID)
	if err != nil {
		log.Error().Err(err).Msg("obrigacao: erro ao listar")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
		return
	}

	views := make([]obrigacaoView, 0, len(obrigacoes))
	for i := range obrigacoes {
		views = append(views, toView(&obrigacoes[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"obrigacoes": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	empresaID := httpmiddleware.EmpresaUUID(ctx)
	if empresaID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "id inválido")
		return
	}

	o, err := h.service.Get(ctx, empresaID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "obrigação não encontrada")
			return
		}
		log.Error().Err(err).Msg("obrigacao: erro ao buscar")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"obrigacao": toView(o)})
}

func toView(o *Obrigacao) obrigacaoView {
	return obrigacaoView{Obrigacao: *o, StatusAtual: o.Status(time.Now().UTC())}
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
		"error": map[string]any{"code": code, "message": message},
	})
}
