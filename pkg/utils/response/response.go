package response

import (
	"net/http"

	"judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the only error shape clients ever see.
type ErrorBody struct {
	Error string `json:"error"`
}

// OK writes data with 200.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error maps err to its HTTP status and writes {"error": message}.
// Internal failures are logged with their stack and answered with a generic message.
func Error(c *gin.Context, err error) {
	appErr := errors.GetError(err)
	status := appErr.Code.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed",
			zap.Int("code", int(appErr.Code)),
			zap.String("message", appErr.Error()),
			zap.Any("details", appErr.Details),
			zap.String("stack", appErr.Stack),
		)
	} else {
		logger.Warn(c.Request.Context(), "request rejected",
			zap.Int("code", int(appErr.Code)),
			zap.String("message", appErr.Error()),
		)
	}

	c.JSON(status, ErrorBody{Error: clientMessage(appErr)})
}

// ErrorWithCode writes an error for code, using its default message when message is empty.
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, errors.NotFound, message)
}

// AbortWithError writes the error and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func clientMessage(err *errors.Error) string {
	if err.Code == errors.InternalServerError {
		return errors.InternalServerError.Message()
	}
	return err.Error()
}
