package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// Simulado implementa Registrador em memória para desenvolvimento e testes.
// Gera hashes aleatórios e guarda os ativos registrados para inspeção.
type Simulado struct {
	mu      sync.Mutex
	ativos  map[string]Asset
	donos   map[string]string
	Falhar  bool
	Chamado int
}

func NewSimulado() *Simulado {
	return &Simulado{
		ativos: make(map[string]Asset),
		donos:  make(map[string]string),
	}
}

func (s *Simulado) RegisterAsset(ctx context.Context, asset Asset) (*Registro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Chamado++
	if s.Falhar {
		return &Registro{Status: RegistroFalhou}, nil
	}

	s.ativos[asset.AssetID] = asset
	return &Registro{TransactionHash: novoHash(), Status: RegistroConfirmado}, nil
}

func (s *Simulado) TransferToken(ctx context.Context, assetID, deEmpresa, paraEmpresa string) (*Registro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Chamado++
	if s.Falhar {
		return &Registro{Status: RegistroFalhou}, nil
	}
	if _, ok := s.ativos[assetID]; !ok {
		return &Registro{Status: RegistroFalhou}, nil
	}

	s.donos[assetID] = paraEmpresa
	return &Registro{TransactionHash: novoHash(), Status: RegistroConfirmado}, nil
}

// Registrado devolve o ativo registrado, se existir.
func (s *Simulado) Registrado(assetID string) (Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.ativos[assetID]
	return asset, ok
}

func novoHash() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}
