package rest

import (
	"github.com/gin-gonic/gin"
)

// SuccessResponse is the envelope every successful Control Surface verb
// returns its payload in, matching the teacher's rest.SuccessResponse shape.
type SuccessResponse struct {
	Data any `json:"data"`
}

func respondJSON(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Data: data})
}

func respondAPIError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondAPIError(c, ErrInvalidJSON)
		return false
	}
	return true
}
