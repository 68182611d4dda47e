package parcel

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parcelRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "parcel_number", "situs_address", "latitude", "longitude"})
}

func TestMatch_PicksBestParcel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lat, lng := 45.52, -122.68
	mock.ExpectQuery("SELECT id, parcel_number, situs_address, latitude, longitude").
		WithArgs("456 Oak Ave", scanLimit).
		WillReturnRows(parcelRows().
			AddRow(int64(1), "0123456789", "456 OAK AVE S", &lat, &lng).
			AddRow(int64(2), "0123456790", "456 OAK AVE", &lat, &lng))

	m := NewMatcher(mock)
	p, err := m.Match(context.Background(), "456 Oak Ave #12, Portland, OR 97205")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "0123456790", p.ParcelNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_NothingAboveThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, parcel_number, situs_address, latitude, longitude").
		WithArgs("456 Oak Ave", scanLimit).
		WillReturnRows(parcelRows().
			AddRow(int64(1), "5555", "456 OAKWOOD MEADOWS PKWY BLDG C", (*float64)(nil), (*float64)(nil)))

	m := NewMatcher(mock)
	p, err := m.Match(context.Background(), "456 Oak Ave, Portland, OR")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_EmptyHint(t *testing.T) {
	m := NewMatcher(nil)
	p, err := m.Match(context.Background(), "  #12 ")
	require.NoError(t, err)
	assert.Nil(t, p)
}
