package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/kawhe-app/kawhe/internal/account/domain"
	ledgerdomain "github.com/kawhe-app/kawhe/internal/ledger/domain"
	registrationdomain "github.com/kawhe-app/kawhe/internal/registration/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type              string            `json:"type"`
	Message           string            `json:"message"`
	Errors            []ValidationError `json:"errors,omitempty"`
	RetryAfterSeconds int               `json:"retry_after_seconds,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var cooldown *ledgerdomain.CooldownError
	if errors.As(err, &cooldown) {
		return http.StatusConflict, errorPayload{
			Type:              "cooldown_active",
			Message:           "stamp cooldown active",
			RetryAfterSeconds: int(cooldown.Remaining.Seconds()) + 1,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ledgerdomain.ErrStaffNotFound):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ledgerdomain.ErrAccessDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ledgerdomain.ErrVerificationRequired):
		return http.StatusForbidden, errorPayload{
			Type:    "verification_required",
			Message: "account must be verified before stamping",
		}
	case errors.Is(err, ledgerdomain.ErrCooldownActive):
		return http.StatusConflict, errorPayload{
			Type:    "cooldown_active",
			Message: "stamp cooldown active",
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientRewards):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_rewards",
			Message: "not enough rewards to redeem",
		}
	case errors.Is(err, ledgerdomain.ErrStaleAccount):
		return http.StatusConflict, errorPayload{
			Type:    "stale_account",
			Message: "account was modified concurrently, retry",
		}
	case errors.Is(err, ledgerdomain.ErrInvalidCount),
		errors.Is(err, accountdomain.ErrInvalidID),
		errors.Is(err, registrationdomain.ErrInvalidPushToken),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
	case errors.Is(err, registrationdomain.ErrPassTypeMismatch):
		return http.StatusBadRequest, errorPayload{
			Type:    "pass_type_mismatch",
			Message: "unknown pass type identifier",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrAccountNotFound),
		errors.Is(err, registrationdomain.ErrAccountNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog tags handler errors for the request log without
// leaking internals.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status == http.StatusNotFound:
		return "not_found", payload.Type
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "auth", payload.Type
	default:
		return "client", payload.Type
	}
}
