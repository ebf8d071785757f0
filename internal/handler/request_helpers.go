package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ano-letivo-api/internal/middleware"
	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/response"
)

// currentOperator writes a 401 and returns false when the route ran without JWT.
func currentOperator(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.Operator(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func yearAndSchool(c *gin.Context) (int, string, bool) {
	year, err := strconv.Atoi(c.Query("year"))
	schoolID := c.Query("schoolId")
	if err != nil || year <= 0 || schoolID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and schoolId are required"))
		return 0, "", false
	}
	return year, schoolID, true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
