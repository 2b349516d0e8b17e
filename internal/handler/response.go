package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/pkg/httputil"
	"github.com/jwalitptl/telehealth-api/pkg/validator"
)

// Fail writes err through the shared error envelope.
func Fail(c *gin.Context, err error) {
	httputil.RespondWithError(c, err)
}

// BindJSON decodes and validates the body into req, answering 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithBadRequest(c, validator.Message(err))
		return false
	}
	return true
}
