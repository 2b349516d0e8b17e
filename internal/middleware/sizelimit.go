package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxHeaderSize int
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,
		MaxHeaderSize: 1 << 14,
	}
}

// SizeLimit rejects oversize requests up front and caps the body reader for chunked uploads.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.MaxBodySize > 0 && c.Request.ContentLength > config.MaxBodySize {
			tooLarge(c, "request body too large")
			return
		}

		if config.MaxHeaderSize > 0 {
			size := 0
			for name, values := range c.Request.Header {
				size += len(name)
				for _, v := range values {
					size += len(v)
				}
			}
			if size > config.MaxHeaderSize {
				tooLarge(c, "request headers too large")
				return
			}
		}

		if config.MaxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}
		c.Next()
	}
}

func tooLarge(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
		Status:  "error",
		Message: msg,
	})
}
