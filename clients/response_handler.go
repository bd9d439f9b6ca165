package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/errors"
)

const maxResponseBody = 1 << 20

// HandleResponse decodes a gateway response into successBody, or turns a
// non-2xx response into an *errors.APIError carrying the upstream status.
// An empty or 204 body leaves successBody untouched.
func HandleResponse(resp *http.Response, successBody any, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		logger.Error("Error reading gateway response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return errors.NewAPIError(resp.StatusCode, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("Remote gateway returned non-2xx response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return gatewayError(resp.StatusCode, body)
	}

	if successBody == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, successBody); err != nil {
		return errors.NewAPIError(http.StatusInternalServerError, fmt.Sprintf("failed to decode gateway response: %v", err))
	}
	return nil
}

func gatewayError(status int, body []byte) error {
	switch status {
	case http.StatusConflict:
		return errors.ErrConflict
	case http.StatusNotFound:
		return errors.NewNotFoundError("resource not found")
	}

	var apiErr errors.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return errors.NewAPIError(status, fmt.Sprintf("unknown error: %s", bytes.TrimSpace(body)))
	}
	apiErr.StatusCode = status
	return &apiErr
}
