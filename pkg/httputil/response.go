package httputil

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: "success", Data: data})
}

// RespondWithMessage sends a success response carrying only a message
func RespondWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Status: "success", Message: message})
}

// RespondWithError maps err onto a status code and an error envelope
func RespondWithError(c *gin.Context, err error) {
	status := errors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, Response{Status: "error", Message: errors.MessageOf(err)})
}

// RespondWithBadRequest sends a 400 with the given message
func RespondWithBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Status: "error", Message: message})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data: PaginatedResponse{
			Items: data,
			Pagination: Pagination{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPages,
			},
		},
	})
}

// PageParams reads page and page_size query params with defaults and an upper bound
func PageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
