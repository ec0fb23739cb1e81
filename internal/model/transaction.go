package model

import "time"

type TransactionType string

const (
	TxHourlyServerCharge         TransactionType = "hourly_server_charge"
	TxHourlyVolumeCharge         TransactionType = "hourly_volume_charge"
	TxBandwidthOverage           TransactionType = "bandwidth_overage"
	TxServerDeletedInsufficient  TransactionType = "server_deleted_insufficient_funds"
	TxVolumesDeletedInsufficient TransactionType = "volume_deleted_insufficient_funds"
	TxDeposit                    TransactionType = "deposit"
	TxAdminAdjustment            TransactionType = "admin_adjustment"
)

func (t TransactionType) String() string { return string(t) }

type TransactionStatus string

const (
	TxCompleted TransactionStatus = "completed"
)

// Transaction is an immutable ledger row. Amount is signed cents and is
// applied to the account balance in the same database transaction.
type Transaction struct {
	ID             string            `db:"id"            json:"id"`
	AccountID      int64             `db:"account_id"    json:"account_id"`
	ResourceID     *int64            `db:"resource_id"   json:"resource_id,omitempty"`
	Amount         int64             `db:"amount"        json:"amount"`
	Type           TransactionType   `db:"type"          json:"type"`
	Description    string            `db:"description"   json:"description"`
	Status         TransactionStatus `db:"status"        json:"status"`
	IdempotencyKey string            `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time         `db:"created_at"    json:"created_at"`
}
