package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "listings", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"listings"}, []string{"full_address", "price"}).WillReturnResult(3)

	rows := [][]any{{"1 Main St", 1200}, {"2 Main St", 1300}, {"3 Main St", 1400}}
	n, err := CopyFrom(context.Background(), mock, "listings", []string{"full_address", "price"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"listings"}, []string{"full_address"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"1 Main St"}}
	_, err = CopyFrom(context.Background(), mock, "listings", []string{"full_address"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO listings")
	assert.NoError(t, mock.ExpectationsWereMet())
}
