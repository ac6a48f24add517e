// internal/pkg/response/response.go
package response

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	xerrors "stockwatch/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error payload. The client core reads `message` first and
// falls back to `error`.
type ErrorBody struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes payload as-is. Resource endpoints return bare objects so the
// client cache stores exactly what the caller decodes.
func JSON(c *gin.Context, status int, payload interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, payload)
}

// JSONWithETag writes payload with a content hash ETag and answers 304
// when the request's If-None-Match already names it.
func JSONWithETag(c *gin.Context, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to encode response", err)
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Error aborts the chain and writes a standardized error body.
func Error(c *gin.Context, code int, message string, err error) {
	c.Abort()

	body := ErrorBody{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	c.JSON(code, body)
}

// ValidationError writes 400 with only the `error` field set, which is the
// shape the finance proxy documents.
func ValidationError(c *gin.Context, err error) {
	c.Abort()
	c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

// FromError maps sentinel errors to status codes.
func FromError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		Error(c, http.StatusNotFound, message, err)
	case errors.Is(err, xerrors.ErrUnauthorized), errors.Is(err, xerrors.ErrSessionExpired),
		errors.Is(err, xerrors.ErrInvalidCredential):
		Error(c, http.StatusUnauthorized, message, err)
	case errors.Is(err, xerrors.ErrForbidden):
		Error(c, http.StatusForbidden, message, err)
	case errors.Is(err, xerrors.ErrConflict):
		Error(c, http.StatusConflict, message, err)
	case errors.Is(err, xerrors.ErrRateLimited):
		Error(c, http.StatusTooManyRequests, message, err)
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrInvalidSymbol),
		errors.Is(err, xerrors.ErrInvalidPeriod), errors.Is(err, xerrors.ErrInvalidInterval):
		ValidationError(c, err)
	case errors.Is(err, xerrors.ErrProviderFailed):
		Error(c, http.StatusBadGateway, message, err)
	default:
		Error(c, http.StatusInternalServerError, message, err)
	}
}
