package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager_SharedResolver(t *testing.T) {
	primaryDB, primaryMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	cm := newConnectionManager(primaryDB, nil, ConnectionConfig{})
	assert.True(t, cm.SharedResolver())
	assert.Same(t, cm.Primary(), cm.Resolver())

	primaryMock.ExpectPing()
	require.NoError(t, cm.HealthCheck(context.Background()))

	primaryMock.ExpectClose()
	require.NoError(t, cm.Close())
	require.NoError(t, primaryMock.ExpectationsWereMet())
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("both healthy", func(t *testing.T) {
		primaryDB, primaryMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer primaryDB.Close()
		resolverDB, resolverMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer resolverDB.Close()

		cm := newConnectionManager(primaryDB, resolverDB, ConnectionConfig{})
		assert.False(t, cm.SharedResolver())

		primaryMock.ExpectPing()
		resolverMock.ExpectPing()
		require.NoError(t, cm.HealthCheck(context.Background()))
		require.NoError(t, primaryMock.ExpectationsWereMet())
		require.NoError(t, resolverMock.ExpectationsWereMet())
	})

	t.Run("primary down", func(t *testing.T) {
		primaryDB, primaryMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer primaryDB.Close()

		cm := newConnectionManager(primaryDB, nil, ConnectionConfig{})
		primaryMock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err = cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("resolver down", func(t *testing.T) {
		primaryDB, primaryMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer primaryDB.Close()
		resolverDB, resolverMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer resolverDB.Close()

		cm := newConnectionManager(primaryDB, resolverDB, ConnectionConfig{})
		primaryMock.ExpectPing()
		resolverMock.ExpectPing().WillReturnError(errors.New("permission denied"))

		err = cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolver unhealthy")
	})
}

func TestConnectionManager_CloseJoinsErrors(t *testing.T) {
	primaryDB, primaryMock, err := sqlmock.New()
	require.NoError(t, err)
	resolverDB, resolverMock, err := sqlmock.New()
	require.NoError(t, err)

	cm := newConnectionManager(primaryDB, resolverDB, ConnectionConfig{})
	primaryMock.ExpectClose().WillReturnError(errors.New("primary busy"))
	resolverMock.ExpectClose().WillReturnError(errors.New("resolver busy"))

	err = cm.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary close error")
	assert.Contains(t, err.Error(), "resolver close error")
}
