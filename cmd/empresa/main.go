package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mercadotc/api/internal/db"
	"github.com/mercadotc/api/internal/empresa"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	repo := empresa.NewRepository(pool)
	service := empresa.NewService(repo)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		if err := runCreate(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar empresa")
		}
	case "list":
		if err := runList(ctx, service); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar empresas")
		}
	case "desativar":
		if err := runDesativar(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao desativar empresa")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "empresa CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  empresa create --cnpj 11222333000181 --razao \"Empresa Exemplo SA\" --uf SP [--fantasia nome] [--email contato@exemplo.com]")
	fmt.Fprintln(os.Stderr, "  empresa list")
	fmt.Fprintln(os.Stderr, "  empresa desativar --id <uuid>")
}

func runCreate(ctx context.Context, service *empresa.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		cnpj     = fs.String("cnpj", "", "CNPJ da empresa (obrigatório)")
		razao    = fs.String("razao", "", "razão social (obrigatório)")
		uf       = fs.String("uf", "", "UF sede (obrigatório)")
		fantasia = fs.String("fantasia", "", "nome fantasia")
		email    = fs.String("email", "", "email de contato")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := service.Criar(ctx, empresa.NovaEmpresaInput{
		CNPJ:         *cnpj,
		RazaoSocial:  *razao,
		NomeFantasia: *fantasia,
		Email:        *email,
		UF:           *uf,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("id", e.ID.String()).
		Str("cnpj", e.CNPJ).
		Str("razao_social", e.RazaoSocial).
		Msg("empresa criada")
	return nil
}

func runList(ctx context.Context, service *empresa.Service) error {
	empresas, err := service.Listar(ctx)
	if err != nil {
		return err
	}

	for _, e := range empresas {
		fmt.Printf("%s  %s  %-40s  %s  ativa=%t\n", e.ID, e.CNPJ, e.RazaoSocial, e.UF, e.Ativa)
	}
	fmt.Printf("total: %d\n", len(empresas))
	return nil
}

func runDesativar(ctx context.Context, service *empresa.Service, args []string) error {
	fs := flag.NewFlagSet("desativar", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	idRaw := fs.String("id", "", "identificador da empresa (obrigatório)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := uuid.Parse(*idRaw)
	if err != nil {
		return fmt.Errorf("id inválido: %w", err)
	}

	if err := service.Desativar(ctx, id); err != nil {
		return err
	}
	log.Info().Str("id", id.String()).Msg("empresa desativada")
	return nil
}
