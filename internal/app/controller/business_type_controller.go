package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/service"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
)

type BusinessTypeController struct {
	service service.BusinessTypeService
}

func NewBusinessTypeController(service service.BusinessTypeService) *BusinessTypeController {
	return &BusinessTypeController{service: service}
}

// ListBusinessTypes handles GET /api/v1/business-types
func (ctrl *BusinessTypeController) ListBusinessTypes(c *gin.Context) {
	types, err := ctrl.service.List()
	if err != nil {
		apperrors.RespondServiceError(c, err, "list business types")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"business_types": types,
		"count":          len(types),
	})
}
