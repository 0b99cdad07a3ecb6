// File: internal/infra/api/dto.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
		return model.PlanType(fl.Field().String()).Valid()
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type piLoginRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
	UID         string `json:"uid"`
	Username    string `json:"username"`
	Sandbox     bool   `json:"sandbox"`
}

type createPaymentRequest struct {
	PaymentID    string         `json:"paymentId" validate:"required,max=128"`
	PlanType     model.PlanType `json:"planType" validate:"required,plan"`
	ArticleID    *int64         `json:"articleId" validate:"omitempty,gt=0"`
	CategorySlug string         `json:"categorySlug" validate:"max=64"`
	Sandbox      bool           `json:"sandbox"`
}

type approvePaymentRequest struct {
	PaymentID string         `json:"paymentId" validate:"required"`
	PlanType  model.PlanType `json:"planType" validate:"required,plan"`
}

type completePaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Txid      string `json:"txid" validate:"required"`
	ArticleID *int64 `json:"articleId" validate:"omitempty,gt=0"`
}

type activateRequest struct {
	ArticleID *int64         `json:"articleId" validate:"required,gt=0"`
	PlanType  model.PlanType `json:"planType" validate:"required,plan"`
	Username  string         `json:"username"`
}

type syncSessionRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// decode reads a JSON body into dst and validates it. Failures are
// ErrInvalidArgument wrapped with a readable reason.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed body", domain.ErrInvalidArgument)
	}
	if err := validate.Struct(dst); err != nil {
		return &validationError{fields: fieldErrors(err)}
	}
	return nil
}

type validationError struct{ fields map[string]string }

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for k, v := range e.fields {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *validationError) Unwrap() error { return domain.ErrInvalidArgument }

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "plan":
		return "must be one of STANDARD, CATEGORY_SLIDER, MAIN_SLIDER"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
