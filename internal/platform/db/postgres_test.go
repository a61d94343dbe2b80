package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	require.True(t, IsUniqueViolation(dup))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
	require.False(t, IsUniqueViolation(nil))
}

type failingBeginner struct{}

func (failingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("connection refused")
}

func TestWithTxBeginFailure(t *testing.T) {
	called := false
	err := WithTx(context.Background(), failingBeginner{}, func(pgx.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "begin tx")
	require.False(t, called)
}

type recordingBeginner struct {
	opts pgx.TxOptions
}

func (r *recordingBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	r.opts = opts
	return nil, errors.New("stop")
}

func TestIsolationLevels(t *testing.T) {
	rec := &recordingBeginner{}
	_ = WithTx(context.Background(), rec, func(pgx.Tx) error { return nil })
	require.Equal(t, pgx.RepeatableRead, rec.opts.IsoLevel)

	_ = WithLockingTx(context.Background(), rec, func(pgx.Tx) error { return nil })
	require.Equal(t, pgx.ReadCommitted, rec.opts.IsoLevel)
}
