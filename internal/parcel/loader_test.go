package parcel

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `parcel_number,situs_address,latitude,longitude
0123456789,456 OAK AVE,45.52,-122.68
9876543210,789 PINE ST,,
,123 ORPHAN RD,45.1,-122.2
5555555555,,45.1,-122.2
`

func TestParseCSV(t *testing.T) {
	recs, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "0123456789", recs[0].ParcelNumber)
	assert.Equal(t, "456 OAK AVE", recs[0].SitusAddress)
	require.NotNil(t, recs[0].Latitude)
	assert.InDelta(t, 45.52, *recs[0].Latitude, 0.001)

	assert.Equal(t, "9876543210", recs[1].ParcelNumber)
	assert.Nil(t, recs[1].Latitude)
	assert.Nil(t, recs[1].Longitude)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	recs, err := ParseCSV(strings.NewReader("parcel_number,situs_address\n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseCSV_TooFewColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("parcel_number\n123\n"))
	require.Error(t, err)
}

func TestLoad_ReplaceTruncatesAndCopies(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("TRUNCATE parcels").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"parcels"}, parcelColumns).WillReturnResult(2)

	recs, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	n, err := Load(context.Background(), mock, recs, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_IncrementalUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_parcels"}, parcelColumns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO \"parcels\"").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	recs, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	n, err := Load(context.Background(), mock, recs, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
