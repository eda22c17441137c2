package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/dto"
	"github.com/sirgawain0x/metoken-orchestrator/internal/middleware"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
	"github.com/sirgawain0x/metoken-orchestrator/internal/services"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// MeTokenHandler exposes the creation orchestrator over HTTP.
type MeTokenHandler struct {
	creation *services.CreationService
	repo     repository.PendingOperationRepository
	records  repository.MeTokenRecordRepository
	logger   *logrus.Logger
}

// NewMeTokenHandler wires the handler.
func NewMeTokenHandler(creation *services.CreationService, repo repository.PendingOperationRepository, records repository.MeTokenRecordRepository, logger *logrus.Logger) *MeTokenHandler {
	return &MeTokenHandler{creation: creation, repo: repo, records: records, logger: logger}
}

// Create starts a MeToken creation for the authenticated account. The call
// blocks through submission and confirmation; a confirmation timeout returns
// 202 with the parked operation while polling continues in the background.
func (h *MeTokenHandler) Create(c *gin.Context) {
	account := middleware.AccountFromContext(c)

	var req dto.CreateMeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	deposit := req.AssetsDeposited
	if deposit == "" {
		deposit = "0"
	}

	op, err := h.creation.CreateMeToken(c.Request.Context(), account, models.CreationParams{
		Name:            req.Name,
		Symbol:          req.Symbol,
		HubID:           req.HubID,
		AssetsDeposited: deposit,
	})
	if err != nil {
		status, code := classifyCreationError(err)
		h.logger.WithFields(logrus.Fields{
			"account": account,
			"code":    code,
		}).Warn("MeToken creation failed: ", err)
		c.JSON(status, dto.ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if op.Status == models.PendingOperationStatusTimeout {
		c.JSON(http.StatusAccepted, dto.FromPendingOperation(op))
		return
	}
	c.JSON(http.StatusOK, dto.FromPendingOperation(op))
}

func classifyCreationError(err error) (int, string) {
	var insufficientFunds *models.InsufficientFundsError
	var deploymentFunding *models.DeploymentFundingRequiredError
	var insufficientGas *models.InsufficientGasError
	var sponsorship *models.SponsorshipMisconfiguredError
	var approval *models.ApprovalError

	switch {
	case errors.As(err, &insufficientFunds):
		return http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"
	case errors.As(err, &deploymentFunding):
		return http.StatusPaymentRequired, "DEPLOYMENT_FUNDING_REQUIRED"
	case errors.As(err, &insufficientGas):
		return http.StatusPaymentRequired, "INSUFFICIENT_GAS"
	case errors.As(err, &sponsorship):
		return http.StatusBadGateway, "SPONSORSHIP_MISCONFIGURED"
	case errors.As(err, &approval):
		return http.StatusBadGateway, "APPROVAL_FAILED"
	case errors.Is(err, services.ErrSubmitTimeout):
		return http.StatusGatewayTimeout, "SUBMIT_TIMEOUT"
	default:
		return http.StatusInternalServerError, "CREATION_FAILED"
	}
}

// ListPending returns the authenticated account's unresolved ledger entries,
// newest first.
func (h *MeTokenHandler) ListPending(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	ops, err := h.repo.ListByInitiator(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]dto.OperationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, dto.FromPendingOperation(op))
	}
	c.JSON(http.StatusOK, gin.H{"operations": out})
}

// GetOperation returns one ledger entry by handle. Only the owning account
// may read it.
func (h *MeTokenHandler) GetOperation(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	op, err := h.repo.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		if errors.Is(err, repository.ErrOperationNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "operation not found", Code: "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if !utils.SameAddress(op.Initiator, account) {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "operation belongs to another account", Code: "FORBIDDEN"})
		return
	}
	c.JSON(http.StatusOK, dto.FromPendingOperation(op))
}

// Retry rechecks a parked operation once against the registry and, only if
// nothing landed, resubmits the creation.
func (h *MeTokenHandler) Retry(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	handle := c.Param("handle")

	existing, err := h.repo.GetByHandle(c.Request.Context(), handle)
	if err != nil {
		if errors.Is(err, repository.ErrOperationNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "operation not found", Code: "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if !utils.SameAddress(existing.Initiator, account) {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "operation belongs to another account", Code: "FORBIDDEN"})
		return
	}

	op, err := h.creation.RetryOperation(c.Request.Context(), handle)
	if err != nil {
		status, code := classifyCreationError(err)
		c.JSON(status, dto.ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	c.JSON(http.StatusOK, dto.FromPendingOperation(op))
}

// Delete removes a ledger entry the account no longer wants tracked.
func (h *MeTokenHandler) Delete(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	handle := c.Param("handle")

	op, err := h.repo.GetByHandle(c.Request.Context(), handle)
	if err != nil {
		if errors.Is(err, repository.ErrOperationNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "operation not found", Code: "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if !utils.SameAddress(op.Initiator, account) {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "operation belongs to another account", Code: "FORBIDDEN"})
		return
	}
	if err := h.repo.Delete(c.Request.Context(), handle); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMeTokens returns the MeToken records owned by the authenticated account.
func (h *MeTokenHandler) ListMeTokens(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	records, err := h.records.FindByOwner(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metokens": records})
}
