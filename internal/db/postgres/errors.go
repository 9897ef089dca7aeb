package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/hacker-bot/internal/common"
)

// SQLSTATE, которые имеет смысл разбирать
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// Classify помечает инфраструктурные сбои как common.ErrStorageUnavailable,
// сохраняя исходную ошибку в цепочке. Прочие ошибки возвращаются как есть.
func Classify(err error) error {
	if err == nil || errors.Is(err, common.ErrStorageUnavailable) || errors.Is(err, common.ErrCommitUnknown) {
		return err
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	return err
}

// IsTransient сообщает, что ошибку можно повторить: таймаут, обрыв соединения,
// конфликт сериализации или дедлок.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeAdminShutdown, codeCannotConnectNow:
			return true
		}
		// класс 08 — connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

// IsUniqueViolation — нарушение UNIQUE / PRIMARY KEY.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsCheckViolation — нарушение CHECK (например, balance >= 0).
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}
