package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unbasical/bundleota/internal/pkg/api/apicommon"
	"github.com/unbasical/bundleota/pkg/activation"
	"github.com/unbasical/bundleota/pkg/ota"
)

var (
	errUpdateInProgress   = errors.New("another operation is in progress")
	errUnknownTransport   = errors.New("unknown transport")
	errGitNotConfigured   = errors.New("git updates are not configured")
	errMissingRequestBody = errors.New("missing or malformed request body")
)

// statusCode maps an operation failure to the HTTP status of its reply.
func statusCode(err error) int {
	switch {
	case errors.Is(err, activation.ErrNoActiveBundle), errors.Is(err, activation.ErrNoPreviousBundle):
		return http.StatusNotFound
	case errors.Is(err, ota.ErrInvalidInput), errors.Is(err, ota.ErrMetadataSerialization):
		return http.StatusBadRequest
	case errors.Is(err, ota.ErrVersionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ota.ErrTransportError), errors.Is(err, ota.ErrTransferFailed),
		errors.Is(err, ota.ErrPullFailed), errors.Is(err, ota.ErrCloneFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends an error reply to the client.
func RespondWithError(c *gin.Context, statusCode int, kind string, err error, errorContext string) {
	c.JSON(statusCode, apicommon.APIError{
		InnerError: apicommon.APIErrorInner{
			Code:         statusCode,
			Kind:         kind,
			Message:      err.Error(),
			ErrorContext: errorContext,
		},
	})
}

func respondWithResult(c *gin.Context, res ota.Result) {
	if !res.Ok() {
		err := res.Err()
		RespondWithError(c, statusCode(err), res.Outcome(), err, res.Detail)
		return
	}
	resp := apicommon.UpdateResponse{Outcome: res.Outcome()}
	if res.Branch != ota.GitBranchNone {
		resp.Branch = res.Branch.String()
	}
	for _, w := range res.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	c.JSON(http.StatusOK, apicommon.SuccessResponse[apicommon.UpdateResponse]{Success: resp})
}
