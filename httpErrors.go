package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/exchangerate"
	"github.com/trend4media/billing_backend/utils"
)

// errorStatus maps the error taxonomy to HTTP status codes.
func errorStatus(err error) int {
	var validationErr *utils.ValidationError
	var notFoundErr *utils.NotFoundError
	var configErr *utils.ConfigurationError
	var busyErr *utils.BusyError
	var temporalErr *utils.TemporalError
	var externalErr *utils.ExternalServiceError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErr), errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &configErr), errors.As(err, &busyErr):
		return http.StatusConflict
	case errors.As(err, &temporalErr):
		return http.StatusTooEarly
	case errors.As(err, &externalErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, funcName string, err error) {
	status := errorStatus(err)
	body := gin.H{"error": err.Error()}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		body["details"] = utils.ProcessValidationErrors(err)
	}
	var externalErr *utils.ExternalServiceError
	if errors.As(err, &externalErr) {
		body["fallbackRate"] = externalErr.FallbackRate
		body["fallbackMessage"] = "fallback rate available: " + exchangerate.FormatRate(externalErr.FallbackRate)
	}

	if status == http.StatusInternalServerError {
		ctx := c.Request.Context()
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		config.ContextLogger(ctx).WithFields(logrus.Fields{
			"funcName": funcName,
			"route":    c.Request.Method + " " + c.FullPath(),
		}).WithError(err).Error("request failed")
		body = gin.H{"error": "internal server error", "correlation_id": cid}
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
