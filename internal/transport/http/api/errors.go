package api

import (
	"errors"
	"net/http"

	"alphaseeker/internal/analysis"
	"alphaseeker/internal/gateway/provider"
	"alphaseeker/internal/llmjson"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/prompt"
	"alphaseeker/internal/store/ledger"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, llmjson.ErrMalformedResponse), errors.Is(err, provider.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrStorageIO), errors.Is(err, prompt.ErrTemplate):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("[http] %s failed: %v", op, err)
	} else {
		logger.Warnf("[http] %s rejected: %v", op, err)
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
