package mysql

import (
	"context"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleDonation(suspicious bool) *model.Donation {
	d := &model.Donation{
		DonorID:       5,
		DonorEmail:    "dev@example.com",
		CampaignID:    3,
		Amount:        500,
		PaymentMethod: "upi",
		PaymentStatus: model.PaymentStatusCompleted,
		TransactionID: "TXN01HQ3Z",
		RefundStatus:  model.RefundStatusNone,
		CreatedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if suspicious {
		d.IsSuspicious = true
		d.SuspiciousReason = "Unusually high donation amount"
	}
	return d
}

func TestCreateWithLedgerAppliesAmount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	d := sampleDonation(false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO donations").
		WithArgs(d.DonorID, d.DonorEmail, d.CampaignID, d.Amount, d.PaymentMethod, d.PaymentStatus,
			d.TransactionID, d.RefundStatus, false, sqlmock.AnyArg(), d.CreatedAt).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET current_amount = current_amount + ?")).
		WithArgs(500.0, 3, model.CampaignStatusApproved, d.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithLedger(context.Background(), d))
	assert.Equal(t, 11, d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithLedgerSkipsFlaggedAmount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	d := sampleDonation(true)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO donations").WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithLedger(context.Background(), d))
	assert.Equal(t, 12, d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithLedgerRollsBackWhenCampaignClosed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	d := sampleDonation(false)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO donations").WillReturnResult(sqlmock.NewResult(13, 1))
	mock.ExpectExec(regexp.QuoteMeta("AND is_expired = 0 AND end_date >= ?")).
		WithArgs(500.0, 3, model.CampaignStatusApproved, d.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateWithLedger(context.Background(), d)
	assert.ErrorIs(t, err, interfaces.ErrStateChanged)
	assert.Zero(t, d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRefundClampsCampaignAmount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	d := sampleDonation(false)
	d.ID = 9
	at := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET refund_status").
		WithArgs(model.RefundStatusCompleted, model.PaymentStatusRefunded, at, 9, model.RefundStatusRequested).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("GREATEST(current_amount - ?, 0)")).
		WithArgs(500.0, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.CompleteRefund(context.Background(), d, at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRefundAlreadyProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	d := sampleDonation(false)
	d.ID = 9

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET refund_status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := repo.CompleteRefund(context.Background(), d, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRefundRequestedIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND refund_status = ?")).
		WithArgs(model.RefundStatusRequested, "changed mind", at, 9, model.RefundStatusNone).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRefundRequested(context.Background(), 9, "changed mind", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDonationByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"id", "donor_id", "donor_email", "campaign_id", "amount", "payment_method",
		"payment_status", "transaction_id", "refund_status", "refund_reason", "refund_requested_at",
		"refunded_at", "is_suspicious", "suspicious_reason", "created_at"}

	mock.ExpectQuery("FROM donations d WHERE d.id = ?").WithArgs(9).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(9, 5, "dev@example.com", 3, 500.0, "upi",
			"completed", "TXN1", "requested", "changed mind", created, nil, false, nil, created))
	mock.ExpectQuery("FROM donations d WHERE d.id = ?").WithArgs(10).
		WillReturnRows(sqlmock.NewRows(columns))

	d, err := repo.FindByID(context.Background(), 9)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "changed mind", d.RefundReason)
	require.NotNil(t, d.RefundRequestedAt)
	assert.Nil(t, d.RefundedAt)
	assert.Empty(t, d.SuspiciousReason)

	missing, err := repo.FindByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByCampaigns(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDonationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE campaign_id IN (?, ?)")).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "count"}).AddRow(1, 4))

	counts, err := repo.CountByCampaigns(context.Background(), []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 4}, counts)

	empty, err := repo.CountByCampaigns(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
