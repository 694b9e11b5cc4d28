package storage

import (
	"context"
	"errors"
)

// NoopUploader entra no lugar do bucket quando STORAGE_* não está
// configurado: anexar documentos a uma compensação passa a falhar com erro
// claro em vez de aceitar o upload e perder o arquivo.
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	return nil, errors.New("storage: nenhum backend de documentos configurado")
}
