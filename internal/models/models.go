package models

import (
	"time"
)

// PendingOperationStatus lifecycle status of a persisted creation attempt
type PendingOperationStatus string

const (
	PendingOperationStatusPending    PendingOperationStatus = "pending"    // submitted, no handle confirmation yet
	PendingOperationStatusConfirming PendingOperationStatus = "confirming" // handle acquired, waiting for receipt
	PendingOperationStatusConfirmed  PendingOperationStatus = "confirmed"  // receipt or result address known
	PendingOperationStatusFailed     PendingOperationStatus = "failed"     // terminal submission failure
	PendingOperationStatusTimeout    PendingOperationStatus = "timeout"    // receipt wait expired, poller takes over
)

// statusRank orders statuses so transitions only ever move forward.
// timeout is a waypoint, not terminal: it can still advance to confirmed.
var statusRank = map[PendingOperationStatus]int{
	PendingOperationStatusPending:    1,
	PendingOperationStatusConfirming: 2,
	PendingOperationStatusFailed:     3,
	PendingOperationStatusTimeout:    3,
	PendingOperationStatusConfirmed:  4,
}

// PendingOperation is the recoverable record of one in-flight MeToken creation.
// The ledger is keyed by OperationHandle; re-saving the same handle overwrites.
type PendingOperation struct {
	OperationHandle string                 `json:"operation_handle" gorm:"primaryKey"`     // user operation hash from the bundler
	Initiator       string                 `json:"initiator" gorm:"not null;index"`        // smart account that owns the MeToken
	Status          PendingOperationStatus `json:"status" gorm:"not null;default:pending"` // lifecycle status

	// Creation parameters, kept so the attempt can be resubmitted or matched
	// against a later-discovered on-chain result.
	Name            string `json:"name" gorm:"not null"`
	Symbol          string `json:"symbol" gorm:"not null"`
	HubID           uint64 `json:"hub_id" gorm:"not null"`
	AssetsDeposited string `json:"assets_deposited" gorm:"not null"` // wei, decimal string

	TransactionHash string `json:"transaction_hash"`         // set once a receipt is obtained
	MeTokenAddress  string `json:"me_token_address"`         // set at most once, never overwritten
	ErrorMessage    string `json:"error_message" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo reports whether the status move is forward-only legal.
func (op *PendingOperation) CanTransitionTo(next PendingOperationStatus) bool {
	return statusRank[next] >= statusRank[op.Status]
}

// IsExpired reports whether the entry is past the ledger age limit.
func (op *PendingOperation) IsExpired(maxAge time.Duration) bool {
	return time.Since(op.CreatedAt) > maxAge
}

// IsResolved reports whether the entry has a confirmed result address.
func (op *PendingOperation) IsResolved() bool {
	return op.Status == PendingOperationStatusConfirmed && op.MeTokenAddress != ""
}

// MeTokenRecord is the denormalized record the confirmed result is synced to.
// On-chain state stays authoritative; failures writing this never fail a creation.
type MeTokenRecord struct {
	ID              string    `json:"id" gorm:"primaryKey"` // UUID
	Address         string    `json:"address" gorm:"not null;uniqueIndex"`
	Owner           string    `json:"owner" gorm:"not null;index"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	HubID           uint64    `json:"hub_id"`
	AssetsDeposited string    `json:"assets_deposited"`
	TransactionHash string    `json:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
