package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	"go.uber.org/zap"
)

const pkpassContentType = "application/vnd.apple.pkpass"

type registerDeviceRequest struct {
	PushToken string `json:"pushToken"`
}

type walletLogRequest struct {
	Logs []walletLogEntry `json:"logs"`
}

type walletLogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// RegisterDevice handles POST /wallet/v1/devices/:deviceId/registrations/:passTypeId/:serial.
// Status codes follow the wallet pull protocol: 201 on a new
// registration, 200 when the pair already exists, 404 for an unknown
// serial, 400 for a pass type this deployment does not serve.
func (s *Server) RegisterDevice(c *gin.Context) {
	passType := c.Param("passTypeId")
	if passType != s.cfg.PassTypeIdentifier {
		c.Status(http.StatusBadRequest)
		return
	}

	if _, ok := s.resolvePassAccount(c); !ok {
		return
	}

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PushToken) == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	resp, err := s.registrationSvc.Register(c.Request.Context(), registrationdomain.RegisterRequest{
		DeviceLibraryIdentifier: c.Param("deviceId"),
		PassTypeIdentifier:      passType,
		SerialNumber:            c.Param("serial"),
		PushToken:               req.PushToken,
	})
	if err != nil {
		s.walletError(c, "register", err)
		return
	}

	if resp.Created {
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusOK)
}

// UnregisterDevice handles DELETE on the registration path. The
// protocol treats unregistration as idempotent: 200 regardless of
// whether a registration existed.
func (s *Server) UnregisterDevice(c *gin.Context) {
	account, err := s.resolver.Resolve(c.Request.Context(), c.Param("serial"))
	if err != nil {
		s.walletError(c, "unregister", err)
		return
	}
	if account != nil && !s.passAuthorized(c, *account) {
		c.Status(http.StatusUnauthorized)
		return
	}

	err = s.registrationSvc.Unregister(c.Request.Context(), registrationdomain.UnregisterRequest{
		DeviceLibraryIdentifier: c.Param("deviceId"),
		PassTypeIdentifier:      c.Param("passTypeId"),
		SerialNumber:            c.Param("serial"),
	})
	if err != nil {
		s.walletError(c, "unregister", err)
		return
	}
	c.Status(http.StatusOK)
}

// GetPass handles GET /wallet/v1/passes/:passTypeId/:serial. Supports
// conditional fetch via If-Modified-Since against the account's
// last-updated timestamp.
func (s *Server) GetPass(c *gin.Context) {
	if c.Param("passTypeId") != s.cfg.PassTypeIdentifier {
		c.Status(http.StatusBadRequest)
		return
	}

	account, ok := s.resolvePassAccount(c)
	if !ok {
		return
	}

	lastModified := account.UpdatedAt.UTC().Truncate(time.Second)
	if since, err := http.ParseTime(c.GetHeader("If-Modified-Since")); err == nil {
		if !lastModified.After(since) {
			c.Header("Last-Modified", lastModified.Format(http.TimeFormat))
			c.Status(http.StatusNotModified)
			return
		}
	}

	store, err := s.accountRepo.FindStore(c.Request.Context(), s.db, account.StoreID)
	if err != nil || store == nil {
		s.log.Error("pass store lookup failed",
			zap.String("serial", c.Param("serial")),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	bundle, err := s.passGen.Generate(c.Request.Context(), *account, *store)
	if err != nil {
		s.log.Error("pass generation failed",
			zap.String("serial", c.Param("serial")),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	s.metrics.IncPassDownload()
	c.Header("Cache-Control", "no-store")
	c.Header("Last-Modified", lastModified.Format(http.TimeFormat))
	c.Data(http.StatusOK, pkpassContentType, bundle)
}

// ListUpdatedSerials handles GET /wallet/v1/devices/:deviceId/registrations/:passTypeId.
// The optional passesUpdatedSince query narrows the result to serials
// whose account changed after the given timestamp.
func (s *Server) ListUpdatedSerials(c *gin.Context) {
	resp, err := s.registrationSvc.UpdatedSerials(c.Request.Context(), registrationdomain.UpdatedSerialsRequest{
		DeviceLibraryIdentifier: c.Param("deviceId"),
		PassTypeIdentifier:      c.Param("passTypeId"),
		UpdatedSince:            parseUpdatedSince(c.Query("passesUpdatedSince")),
	})
	if err != nil {
		s.walletError(c, "updated_serials", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// WalletLog handles POST /wallet/v1/log. Entries are diagnostic only
// and the endpoint always succeeds.
func (s *Server) WalletLog(c *gin.Context) {
	var req walletLogRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		for _, entry := range req.Logs {
			s.log.Info("wallet client log",
				zap.String("level", entry.Level),
				zap.String("message", entry.Message))
		}
	}
	c.Status(http.StatusOK)
}

// resolvePassAccount resolves the serial path param and enforces the
// pass's authentication token. Writes 404 or 401 and returns false on
// failure.
func (s *Server) resolvePassAccount(c *gin.Context) (*accountdomain.LoyaltyAccount, bool) {
	account, err := s.resolver.Resolve(c.Request.Context(), c.Param("serial"))
	if err != nil {
		s.walletError(c, "resolve", err)
		return nil, false
	}
	if account == nil {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	if !s.passAuthorized(c, *account) {
		c.Status(http.StatusUnauthorized)
		return nil, false
	}
	return account, true
}

func (s *Server) passAuthorized(c *gin.Context, account accountdomain.LoyaltyAccount) bool {
	token := applePassToken(c.GetHeader("Authorization"))
	return token != "" && token == account.WalletAuthToken
}

func applePassToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "ApplePass") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// parseUpdatedSince accepts a unix-seconds tag or an RFC 3339 string;
// anything else means no filtering.
func parseUpdatedSince(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	return nil
}

// walletError logs and answers a wallet protocol request that failed
// for a reason outside the protocol status table.
func (s *Server) walletError(c *gin.Context, op string, err error) {
	status, _ := mapError(err)
	s.log.Warn("wallet protocol error",
		zap.String("op", op),
		zap.String("serial", c.Param("serial")),
		zap.Int("status", status),
		zap.Error(err))
	c.Status(status)
}
