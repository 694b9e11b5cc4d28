package empresa

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("empresa não encontrada")

// Empresa representa um contribuinte habilitado na plataforma.
type Empresa struct {
	ID           uuid.UUID `json:"id"`
	CNPJ         string    `json:"cnpj"`
	RazaoSocial  string    `json:"razao_social"`
	NomeFantasia string    `json:"nome_fantasia,omitempty"`
	Email        string    `json:"email,omitempty"`
	UF           string    `json:"uf"`
	Ativa        bool      `json:"ativa"`
	CriadoEm     time.Time `json:"criado_em"`
	AtualizadoEm time.Time `json:"atualizado_em"`
}

// NovaEmpresaInput contém os campos necessários para o cadastro.
type NovaEmpresaInput struct {
	CNPJ         string
	RazaoSocial  string
	NomeFantasia string
	Email        string
	UF           string
}
