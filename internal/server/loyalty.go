package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
)

const staffContextKey = "staff"

// StaffAuthRequired authenticates the acting staff member from the
// bearer token and stashes them on the request context.
func (s *Server) StaffAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		staff, err := s.accountRepo.FindStaffByToken(c.Request.Context(), s.db, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if staff == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(staffContextKey, *staff)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func actingStaff(c *gin.Context) (accountdomain.Staff, bool) {
	value, ok := c.Get(staffContextKey)
	if !ok {
		return accountdomain.Staff{}, false
	}
	staff, ok := value.(accountdomain.Staff)
	return staff, ok
}

type stampRequest struct {
	Barcode          string `json:"barcode"`
	AccountID        string `json:"account_id"`
	Count            int    `json:"count"`
	OverrideCooldown bool   `json:"override_cooldown"`
}

type redeemRequest struct {
	Barcode   string `json:"barcode"`
	AccountID string `json:"account_id"`
	Quantity  int    `json:"quantity"`
}

// Stamp handles POST /api/v1/loyalty/stamp. The Idempotency-Key header
// makes retries of the same scan safe.
func (s *Server) Stamp(c *gin.Context) {
	staff, ok := actingStaff(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		AbortWithError(c, newValidationError("idempotency-key", "missing_idempotency_key", "Idempotency-Key header is required"))
		return
	}

	var req stampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	accountID, err := s.resolveAccountID(c, req.Barcode, req.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.Stamp(c.Request.Context(), ledgerdomain.StampRequest{
		AccountID:        accountID,
		StaffID:          staff.ID,
		Count:            req.Count,
		IdempotencyKey:   idempotencyKey,
		OverrideCooldown: req.OverrideCooldown,
		UserAgent:        c.Request.UserAgent(),
		IPAddress:        c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Redeem handles POST /api/v1/loyalty/redeem.
func (s *Server) Redeem(c *gin.Context) {
	staff, ok := actingStaff(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idempotencyKey == "" {
		AbortWithError(c, newValidationError("idempotency-key", "missing_idempotency_key", "Idempotency-Key header is required"))
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	accountID, err := s.resolveAccountID(c, req.Barcode, req.AccountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.Redeem(c.Request.Context(), ledgerdomain.RedeemRequest{
		AccountID:      accountID,
		StaffID:        staff.ID,
		Quantity:       req.Quantity,
		IdempotencyKey: idempotencyKey,
		UserAgent:      c.Request.UserAgent(),
		IPAddress:      c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type accountView struct {
	accountdomain.AccountResponse
	RegisteredDevices int64 `json:"registered_devices"`
}

// GetAccount handles GET /api/v1/loyalty/accounts/:id.
func (s *Server) GetAccount(c *gin.Context) {
	staff, ok := actingStaff(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.accountSvc.GetByID(c.Request.Context(), accountdomain.GetAccountRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !staff.CanActOn(resp.Account.StoreID) {
		AbortWithError(c, ErrForbidden)
		return
	}

	devices, err := s.registrationSvc.ActiveDeviceCount(c.Request.Context(), resp.Account.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, accountView{AccountResponse: resp, RegisteredDevices: devices})
}

// resolveAccountID accepts either a scanned barcode payload or an
// explicit account id and returns the target account's id.
func (s *Server) resolveAccountID(c *gin.Context, barcode, accountID string) (snowflake.ID, error) {
	if strings.TrimSpace(barcode) != "" {
		account, err := s.resolver.Resolve(c.Request.Context(), barcode)
		if err != nil {
			return 0, err
		}
		if account == nil {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return account.ID, nil
	}

	if strings.TrimSpace(accountID) == "" {
		return 0, newValidationError("account_id", "missing_account", "barcode or account_id is required")
	}
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil {
		return 0, newValidationError("account_id", "invalid_account", "account_id is not a valid id")
	}
	return id, nil
}
