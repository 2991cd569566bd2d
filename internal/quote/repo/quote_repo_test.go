package repo

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movestash/service-quoting-go/internal/quote"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestPublicIDExists(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewQuoteRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("Q-7K2MN").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := r.PublicIDExists(context.Background(), "Q-7K2MN")
	require.NoError(t, err)
	assert.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextQuoteNumber(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewQuoteRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE staff_quote_counter SET value = value + 1 WHERE id = 1 RETURNING value`)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(1042)))

	n, err := r.NextQuoteNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1042), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQuote(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewQuoteRepo(db)

	q := &quote.Quote{
		ID:                   uuid.New(),
		PublicID:             "Q-7K2MN",
		QuoteNumber:          1042,
		Zip:                  "30301",
		ItemsRaw:             []byte(`[{"container_size":"16","location":"onsite"}]`),
		TotalMonthlyCents:    18900,
		FirstMonthTotalCents: 19800,
		DueTodayCents:        19800,
		CreatedBy:            42,
		CreatedAt:            time.Now(),
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO quotes`)).
		WithArgs(q.ID, q.PublicID, q.QuoteNumber, q.Zip, q.ItemsRaw, nil, nil, nil,
			q.TotalMonthlyCents, q.FirstMonthTotalCents, q.DueTodayCents, q.CreatedBy, q.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Create(context.Background(), q))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPublicID_NotFound(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewQuoteRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM quotes WHERE public_id=$1`)).
		WithArgs("Q-XXXXX").
		WillReturnError(sql.ErrNoRows)

	_, err := r.GetByPublicID(context.Background(), "Q-XXXXX")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZoneForZip(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewPricingRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN zip_codes zc ON zc.zone_id = z.id`)).
		WithArgs("30301").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "delivery_fee_cents", "pickup_fee_cents", "relocation_fee_cents"}).
			AddRow("zone1", "Metro", int64(7900), int64(7900), int64(9900)))

	z, err := r.ZoneForZip(context.Background(), "30301")
	require.NoError(t, err)
	assert.Equal(t, "zone1", z.ID)
	assert.Equal(t, int64(7900), z.DeliveryFeeCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRate_Missing(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	r := NewPricingRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pricing WHERE container_size=$1 AND location=$2`)).
		WithArgs("20", "warehouse").
		WillReturnError(sql.ErrNoRows)

	_, err := r.Rate(context.Background(), "20", "warehouse")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
