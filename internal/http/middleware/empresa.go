package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Empresa extrai a empresa ativa do header X-Empresa e injeta no contexto.
// Rotas que operam sobre títulos e compensações exigem a empresa dona dos ativos.
func Empresa(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		empresaID := r.Header.Get("X-Empresa")
		if empresaID == "" {
			empresaID = r.URL.Query().Get("empresa_id")
		}
		if empresaID == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION", "empresa não informada")
			return
		}

		uid, err := uuid.Parse(empresaID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "empresa inválida")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyEmpresa, uid.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetEmpresa retorna a empresa ativa do contexto.
func GetEmpresa(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyEmpresa).(string)
	return val
}

// EmpresaUUID converte a empresa ativa em uuid, devolvendo Nil quando ausente.
func EmpresaUUID(ctx context.Context) uuid.UUID {
	uid, err := uuid.Parse(GetEmpresa(ctx))
	if err != nil {
		return uuid.Nil
	}
	return uid
}
