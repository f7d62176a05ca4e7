package middleware

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// SmallBodyLimit 页面表单与 JSON 请求的大小限制
const SmallBodyLimit = 64 * 1024

// BodySizeLimit 限制请求体大小
//
// 声明的长度超限时直接返回 413，响应体与 API 的 {code, msg} 结构一致；
// 未声明长度的请求体在读取到上限时报错。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	msg := fmt.Sprintf("请求体过大，上限 %s", humanize.IBytes(uint64(maxBytes)))

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"code": http.StatusRequestEntityTooLarge,
				"msg":  msg,
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
