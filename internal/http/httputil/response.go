package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/common"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func Error(c *gin.Context, status int, err string) {
	c.JSON(status, Response{
		Success: false,
		Error:   err,
	})
}

func BadRequest(c *gin.Context, err string) {
	HTTPError(c, common.HTTPErrorBadRequest(err))
}

func NotFound(c *gin.Context, err string) {
	HTTPError(c, common.HTTPErrorNotFound(err))
}

func HTTPError(c *gin.Context, e *common.HttpError) {
	c.JSON(e.StatusCode, Response{
		Success: false,
		Error:   e.Message,
		Code:    e.Code,
	})
}

// FromError writes err with the status its kind maps to.
func FromError(c *gin.Context, err error) {
	var httpErr *common.HttpError
	if errors.As(err, &httpErr) {
		HTTPError(c, httpErr)
		return
	}
	HTTPError(c, common.HTTPErrorFromEngine(err))
}
