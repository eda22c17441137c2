package dto

import "github.com/sirgawain0x/metoken-orchestrator/internal/models"

// CreateMeTokenRequest is the creation API payload. The initiator comes from
// the authenticated token, never from the body.
type CreateMeTokenRequest struct {
	Name            string `json:"name" binding:"required"`
	Symbol          string `json:"symbol" binding:"required"`
	HubID           uint64 `json:"hub_id" binding:"required"`
	AssetsDeposited string `json:"assets_deposited"` // wei, decimal string; empty means zero deposit
}

// OperationResponse wraps one ledger entry for the API.
type OperationResponse struct {
	OperationHandle string `json:"operation_handle"`
	Initiator       string `json:"initiator"`
	Status          string `json:"status"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	HubID           uint64 `json:"hub_id"`
	AssetsDeposited string `json:"assets_deposited"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	MeTokenAddress  string `json:"me_token_address,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// FromPendingOperation converts a ledger entry to its API shape.
func FromPendingOperation(op *models.PendingOperation) OperationResponse {
	return OperationResponse{
		OperationHandle: op.OperationHandle,
		Initiator:       op.Initiator,
		Status:          string(op.Status),
		Name:            op.Name,
		Symbol:          op.Symbol,
		HubID:           op.HubID,
		AssetsDeposited: op.AssetsDeposited,
		TransactionHash: op.TransactionHash,
		MeTokenAddress:  op.MeTokenAddress,
		ErrorMessage:    op.ErrorMessage,
		CreatedAt:       op.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
