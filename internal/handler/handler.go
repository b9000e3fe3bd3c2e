// Package handler contains the gin HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"podium/internal/generator"
	"podium/internal/ledger"
	"podium/internal/models"
	"podium/internal/payment"
	"podium/internal/session"
	"podium/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUser pulls the authenticated user placed into the context by the
// auth middleware.
func currentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get("currentUser")
	if !exists {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not authenticated")
		return nil, false
	}
	user, ok := v.(*models.User)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not authenticated")
		return nil, false
	}
	return user, true
}

// pageParams reads page / page_size query parameters.
func pageParams(c *gin.Context, defaultSize int) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	return util.NormalizePage(page, size, defaultSize)
}

// fail maps domain errors onto HTTP status and business codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrValidation):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, err.Error())
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrTurnNotOpen),
		errors.Is(err, session.ErrTurnConflict):
		util.Error(c, http.StatusConflict, util.CodeConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredit):
		util.Error(c, http.StatusPaymentRequired, util.CodeInsufficientCredit, err.Error())
	case errors.Is(err, payment.ErrUnknownPackage):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	case errors.Is(err, payment.ErrProvider):
		util.Error(c, http.StatusServiceUnavailable, util.CodePaymentErr, "payment provider unavailable")
	case errors.Is(err, generator.ErrUnavailable), errors.Is(err, generator.ErrMalformed):
		util.Error(c, http.StatusBadGateway, util.CodeGeneratorErr, "question generator unavailable, please retry")
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "internal error")
	}
}
