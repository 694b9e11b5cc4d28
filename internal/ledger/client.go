// Package ledger abstrai o serviço externo de registro de ativos em
// blockchain. O serviço é uma caixa-preta: o motor só monta o payload e
// interpreta o resultado; assinatura, consenso e produção de blocos ficam
// do lado de lá.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Asset é o payload de registro de um ativo no ledger.
type Asset struct {
	AssetID   string            `json:"assetId"`
	AssetType string            `json:"assetType"`
	Valor     decimal.Decimal   `json:"assetValue"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StatusRegistro enumera os desfechos possíveis de um registro.
// A confirmação é modelada como resultado explícito, nunca como retry sem fim.
type StatusRegistro string

const (
	RegistroConfirmado StatusRegistro = "CONFIRMADO"
	RegistroFalhou     StatusRegistro = "FALHOU"
	RegistroTimeout    StatusRegistro = "TIMEOUT"
)

// Registro é o resultado devolvido pelo serviço.
type Registro struct {
	TransactionHash string         `json:"transactionHash"`
	Status          StatusRegistro `json:"status"`
}

// Registrador é o contrato consumido pelos serviços de título e compensação.
type Registrador interface {
	RegisterAsset(ctx context.Context, asset Asset) (*Registro, error)
	TransferToken(ctx context.Context, assetID, deEmpresa, paraEmpresa string) (*Registro, error)
}

var (
	// ErrIndisponivel indica falha de comunicação com o serviço.
	ErrIndisponivel = errors.New("ledger indisponível")
)

// Config descreve credenciais essenciais para o cliente HTTP.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client encapsula chamadas ao serviço de ledger via HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New cria um cliente autenticado por API key.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ledger: base url obrigatória")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// RegisterAsset registra o ativo e devolve hash + status.
func (c *Client) RegisterAsset(ctx context.Context, asset Asset) (*Registro, error) {
	return c.post(ctx, "/assets", asset)
}

// TransferToken transfere a titularidade de um ativo registrado.
func (c *Client) TransferToken(ctx context.Context, assetID, deEmpresa, paraEmpresa string) (*Registro, error) {
	payload := map[string]string{
		"assetId": assetID,
		"from":    deEmpresa,
		"to":      paraEmpresa,
	}
	return c.post(ctx, "/assets/"+assetID+"/transfer", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Registro, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Deadline excedido vira resultado explícito de timeout, não erro ambíguo.
		if errors.Is(err, context.DeadlineExceeded) {
			return &Registro{Status: RegistroTimeout}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIndisponivel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrIndisponivel, resp.StatusCode)
	}

	var registro Registro
	if err := json.NewDecoder(resp.Body).Decode(&registro); err != nil {
		return nil, fmt.Errorf("ledger: resposta inválida: %w", err)
	}
	if registro.TransactionHash == "" && registro.Status == "" {
		return nil, errors.New("ledger: resposta sem hash nem status")
	}
	if registro.Status == "" {
		registro.Status = RegistroConfirmado
	}
	return &registro, nil
}
