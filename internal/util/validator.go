package util

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}

// ValidateCNPJ verifica formato e dígitos verificadores de um CNPJ.
func ValidateCNPJ(cnpj string) error {
	digits := onlyDigits(cnpj)
	if len(digits) != 14 {
		return errors.New("CNPJ deve ter 14 dígitos")
	}

	allEqual := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return errors.New("CNPJ inválido")
	}

	if digits[12] != cnpjCheckDigit(digits[:12]) || digits[13] != cnpjCheckDigit(digits[:13]) {
		return errors.New("CNPJ inválido")
	}
	return nil
}

// NormalizeCNPJ devolve apenas os dígitos do CNPJ.
func NormalizeCNPJ(cnpj string) string {
	return string(onlyDigits(cnpj))
}

// ParseValor converte string monetária em decimal positivo.
func ParseValor(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return decimal.Zero, errors.New(field + " obrigatório")
	}
	valor, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New(field + " inválido")
	}
	if !valor.IsPositive() {
		return decimal.Zero, errors.New(field + " deve ser positivo")
	}
	return valor, nil
}

func onlyDigits(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, byte(r))
		}
	}
	return out
}

func cnpjCheckDigit(digits []byte) byte {
	weight := len(digits) - 7
	sum := 0
	for _, d := range digits {
		sum += int(d-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}
