package web

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/JxTIN21/Codebase/internal/codebase"
)

const errCodeInternal = "INTERNAL_ERROR"

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusForCode maps codebase error codes to HTTP statuses.
func statusForCode(code codebase.ErrorCode) int {
	switch code {
	case codebase.ErrCodeValidation:
		return http.StatusBadRequest
	case codebase.ErrCodeNotFound:
		return http.StatusNotFound
	case codebase.ErrCodeNotReady:
		return http.StatusConflict
	case codebase.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case codebase.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(ctx *gin.Context, err error) {
	logger := gmw.GetLogger(ctx)

	typed, ok := codebase.AsError(err)
	if !ok {
		logger.Error("request failed", zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorBody{
			Code:    errCodeInternal,
			Message: "internal server error",
		}})
		return
	}

	status := statusForCode(typed.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err), zap.String("code", string(typed.Code)))
	} else {
		logger.Debug("request rejected", zap.Error(err), zap.String("code", string(typed.Code)))
	}

	ctx.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:      string(typed.Code),
		Message:   typed.Message,
		Retryable: typed.Retryable,
	}})
}
