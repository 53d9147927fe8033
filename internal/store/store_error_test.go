package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// error paths a live database can't produce

func TestStore_AcquireLock_StoreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dbErr := errors.New("database is locked")
	mock.ExpectExec("INSERT INTO locks").WillReturnError(dbErr)

	// acquisition failure propagates as a hard error, no polling
	_, err = New(db).AcquireLock(context.Background(), "tado_token_refresh")
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSecret_StoreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	dbErr := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT value FROM secrets").WillReturnError(dbErr)

	_, err = New(db).GetSecret(context.Background(), "tado_refresh_token")
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
