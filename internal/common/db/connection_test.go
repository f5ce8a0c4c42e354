package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
)

func TestPing(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPing()
	d := Wrap(conn, logger.Nop())

	require.NoError(t, d.Ping(context.Background()))
	assert.Same(t, conn, d.DB())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingFailureIsWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	d := Wrap(conn, logger.Nop())

	err = d.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging database")
}
