package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/apperrors"
)

func TestDatasourceService_List(t *testing.T) {
	f := newFixture(t)

	infos := f.ds.List()

	require.Len(t, infos, 2)
	assert.Equal(t, "offline", infos[0].ID)
	assert.Equal(t, "shop", infos[1].ID)
	assert.Equal(t, "db", infos[1].Host)
}

func TestDatasourceService_Lookup(t *testing.T) {
	f := newFixture(t)

	db, err := f.ds.Lookup("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", db.Connection.Database)

	_, err = f.ds.Lookup("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDatasourceService_TestConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ds.TestConnection(ctx, "shop")
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.Equal(t, "postgres test", res.Version)
	assert.Empty(t, res.Error)

	f.adapter.SetPingErr(errors.New("connection refused"))
	res, err = f.ds.TestConnection(ctx, "shop")
	require.NoError(t, err, "connectivity failures are reported in the result")
	assert.False(t, res.Connected)
	assert.Contains(t, res.Error, "connection refused")

	res, err = f.ds.TestConnection(ctx, "offline")
	require.NoError(t, err)
	assert.False(t, res.Connected)

	_, err = f.ds.TestConnection(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
