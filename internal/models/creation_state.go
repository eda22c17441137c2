package models

// CreationStatus UI-facing progress status of one creation attempt
type CreationStatus string

const (
	CreationStatusIdle                CreationStatus = "idle"
	CreationStatusCheckingBalance     CreationStatus = "checking_balance"
	CreationStatusApprovingDAI        CreationStatus = "approving_dai"
	CreationStatusCreatingMeToken     CreationStatus = "creating_metoken"
	CreationStatusWaitingConfirmation CreationStatus = "waiting_confirmation"
	CreationStatusPolling             CreationStatus = "polling_status"
	CreationStatusSuccess             CreationStatus = "success"
	CreationStatusError               CreationStatus = "error"
)

// CreationAttemptState is the transient, UI-facing progress of a creation
// attempt. It is never persisted; the PendingOperation ledger carries the
// recoverable state.
type CreationAttemptState struct {
	Status          CreationStatus `json:"status"`
	Message         string         `json:"message"`
	Progress        int            `json:"progress"` // 0-100
	OperationHandle string         `json:"operation_handle,omitempty"`
	TransactionHash string         `json:"transaction_hash,omitempty"`
	MeTokenAddress  string         `json:"me_token_address,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// CreationParams are the immutable arguments of one MeToken creation.
type CreationParams struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	HubID           uint64 `json:"hub_id"`
	AssetsDeposited string `json:"assets_deposited"` // wei, decimal string
}
