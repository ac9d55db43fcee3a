package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/validator"
)

// bindAndValidate decodes the JSON body into dst and runs struct validation.
func bindAndValidate(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.NewBadRequest("Invalid request body").WithInternal(err)
	}
	if err := validator.ValidateStruct(dst); err != nil {
		return apperrors.NewBadRequest(err.Error())
	}
	return nil
}
