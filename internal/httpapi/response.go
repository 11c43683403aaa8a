package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Reply codes carried in Response.Code.
const (
	CodeSuccess      = 0
	CodeInvalidParam = 1001
	CodeNotReady     = 1002
	CodeBackend      = 1003
	CodeInternal     = 1004
)

// Response is the JSON envelope every non-image reply uses.
type Response struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Msg:       "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func fail(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      code,
		Msg:       msg,
		Timestamp: time.Now().Unix(),
	})
}
