package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/api/apicommon"
	"github.com/unbasical/bundleota/pkg/ota"
	"github.com/unbasical/bundleota/pkg/ota/metadata"
	"github.com/unbasical/bundleota/pkg/transport"
)

var invalidInput = ota.KindLabel(ota.ErrInvalidInput)

// requestContext detaches the operation from the client connection,
// an update must not be aborted halfway because the client went away.
func requestContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (a *updateAPI) archiveUpdate(c *gin.Context) {
	var req apicommon.ArchiveUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, invalidInput, errMissingRequestBody, err.Error())
		return
	}
	name := req.Transport
	if name == "" {
		name = a.config.DefaultTransport
	}
	t, ok := a.config.ArchiveTransports[name]
	if !ok {
		RespondWithError(c, http.StatusBadRequest, invalidInput, fmt.Errorf("%w: %q", errUnknownTransport, name), "")
		return
	}
	m, err := decodeMetadata(req.Metadata)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, ota.KindLabel(err), err, "")
		return
	}
	var declared *ota.Version
	if req.Version != nil {
		declared = ota.Version(*req.Version).Ptr()
	}
	opts := ota.UpdateOptions{
		Headers:             req.Headers,
		OnProgress:          progressLogger(log.WithField("source", req.Source)),
		Metadata:            m,
		FormatHint:          req.Format,
		RestartAfterInstall: req.Restart,
		RestartDelay:        time.Duration(req.RestartDelayMillis) * time.Millisecond,
	}
	res := a.config.Orchestrator.ApplyArchiveUpdate(requestContext(c), t, req.Source, declared, opts)
	respondWithResult(c, res)
}

func (a *updateAPI) gitUpdate(c *gin.Context) {
	if a.config.GitTransport == nil {
		RespondWithError(c, http.StatusNotImplemented, invalidInput, errGitNotConfigured, "")
		return
	}
	var req apicommon.GitUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, invalidInput, errMissingRequestBody, err.Error())
		return
	}
	opts := ota.GitUpdateOptions{
		URL:                 req.URL,
		BundlePath:          req.BundlePath,
		Branch:              req.Branch,
		FolderName:          req.Folder,
		OnProgress:          progressLogger(log.WithField("url", req.URL)),
		RestartAfterInstall: req.Restart,
	}
	res := a.config.Orchestrator.ApplyGitUpdate(requestContext(c), a.config.GitTransport, opts)
	respondWithResult(c, res)
}

func (a *updateAPI) removeGitUpdate(c *gin.Context) {
	if a.config.GitTransport == nil {
		RespondWithError(c, http.StatusNotImplemented, invalidInput, errGitNotConfigured, "")
		return
	}
	err := a.config.Orchestrator.RemoveGitUpdate(requestContext(c), a.config.GitTransport, c.Query(apicommon.QueryKeyFolder))
	if err != nil {
		RespondWithError(c, statusCode(err), ota.KindLabel(err), err, "")
		return
	}
	respondWithResult(c, ota.Result{})
}

func (a *updateAPI) removeBundle(c *gin.Context) {
	restart, ok := restartQuery(c)
	if !ok {
		return
	}
	respondWithResult(c, a.config.Orchestrator.RemoveBundle(requestContext(c), restart))
}

func (a *updateAPI) rollback(c *gin.Context) {
	restart, ok := restartQuery(c)
	if !ok {
		return
	}
	respondWithResult(c, a.config.Orchestrator.Rollback(requestContext(c), restart))
}

func (a *updateAPI) restart(c *gin.Context) {
	a.config.Orchestrator.ResetApp(requestContext(c))
	c.Status(http.StatusAccepted)
}

func (a *updateAPI) version(c *gin.Context) {
	v, ok, err := a.config.Orchestrator.VersionAsNumber(c.Request.Context())
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, ota.KindLabel(err), err, "failed to read the installed version")
		return
	}
	c.JSON(http.StatusOK, apicommon.SuccessResponse[apicommon.VersionResponse]{
		Success: apicommon.VersionResponse{Version: int64(v), Numeric: ok},
	})
}

func (a *updateAPI) metadata(c *gin.Context) {
	m, ok, err := a.config.Orchestrator.CurrentMetadata(c.Request.Context())
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, ota.KindLabel(err), err, "failed to read the stored metadata")
		return
	}
	c.JSON(http.StatusOK, apicommon.SuccessResponse[apicommon.MetadataResponse]{
		Success: apicommon.MetadataResponse{Metadata: m, Present: ok},
	})
}

// restartQuery parses the optional restart query parameter and replies with an error if it is malformed.
func restartQuery(c *gin.Context) (bool, bool) {
	v := c.Query(apicommon.QueryKeyRestart)
	if v == "" {
		return false, true
	}
	restart, err := strconv.ParseBool(v)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, invalidInput, err, "query parameter "+apicommon.QueryKeyRestart)
		return false, false
	}
	return restart, true
}

func decodeMetadata(raw json.RawMessage) (any, error) {
	switch {
	case len(raw) == 0:
		return nil, nil
	case string(raw) == "null":
		return metadata.Null, nil
	default:
		return metadata.Deserialize(string(raw))
	}
}

// progressLogger logs transfer progress at most once per second and when the transfer completes.
func progressLogger(logger *log.Entry) transport.ProgressFunc {
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(received, total string) {
		mu.Lock()
		defer mu.Unlock()
		done := received == total
		if !done && time.Since(last) < time.Second {
			return
		}
		last = time.Now()
		r, err := strconv.ParseUint(received, 10, 64)
		if err != nil {
			return
		}
		if t, err := strconv.ParseUint(total, 10, 64); err == nil {
			logger.Debugf("received %s of %s", humanize.Bytes(r), humanize.Bytes(t))
			return
		}
		logger.Debugf("received %s", humanize.Bytes(r))
	}
}
