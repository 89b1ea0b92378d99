package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/service"
)

// writeError maps service errors onto HTTP answers. Unexpected errors are
// logged and reported without detail.
func writeError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		vf   *domain.VerificationFailure
	)
	status := http.StatusInternalServerError
	body := api.ErrorResponse{Error: "internal error"}

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Error, body.Fields = verr.Error(), verr.Fields
	case errors.As(err, &vf):
		status = http.StatusBadRequest
		body.Error = "payment could not be verified"
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
		body.Error = "order not found"
	case errors.Is(err, service.ErrProofRequired):
		status = http.StatusBadRequest
		body.Error = err.Error()
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNotPayable),
		errors.Is(err, repo.ErrAlreadyPaid):
		status = http.StatusConflict
		body.Error = err.Error()
	case errors.Is(err, service.ErrAmountMismatch):
		status = http.StatusUnprocessableEntity
		body.Error = err.Error()
	case errors.Is(err, payment.ErrProvider):
		status = http.StatusBadGateway
		body.Error = "payment provider unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body.Error = "request timed out"
	}

	l := logging.From(c)
	if status >= http.StatusInternalServerError {
		l.Error("request failed", "err", err)
	} else {
		l.Debug("request rejected", "status", status, "err", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

var indexSuffix = regexp.MustCompile(`\[(\d+)\]`)

// bindError turns a gin binding failure into field errors keyed like the
// JSON body ("lineItems.0.productId").
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Message: "malformed request body"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		ns = indexSuffix.ReplaceAllString(ns, ".$1")
		fields[ns] = bindMessage(fe)
	}
	return domain.NewValidationError(fields)
}

func bindMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
