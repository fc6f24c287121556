package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"ridez/internal/query"
	"ridez/internal/repository"
	"ridez/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	code := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		resp = ErrorResponse{Error: service.ErrValidation.Error(), Fields: verr.Fields}
	case errors.Is(err, query.ErrDistanceCoordinatesRequired):
		resp.Error = query.CoordinatesMessage()
	case errors.Is(err, repository.ErrNotFound):
		resp.Error = "not found"
	case code == http.StatusInternalServerError:
		resp.Error = "internal server error"
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Missing resources, and distance ordering without coordinates.
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, query.ErrDistanceCoordinatesRequired):
		return http.StatusNotFound

	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, query.ErrInvalidStatusFilter),
		errors.Is(err, query.ErrInvalidDistanceOrigin),
		errors.Is(err, query.ErrInvalidPagination),
		errors.Is(err, repository.ErrInvalidReference):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

var registerTagNames sync.Once

// bindJSON decodes the request body into req and runs its binding rules.
// Failures are reported per JSON field.
func bindJSON(c *gin.Context, req any) bool {
	registerTagNames.Do(useJSONFieldNames)

	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:  service.ErrValidation.Error(),
		Fields: bindingFieldErrors(err),
	})
	return false
}

func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// bindingFieldErrors translates decoding and validator errors into field messages.
func bindingFieldErrors(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	case errors.As(err, &typeErr):
		name := typeErr.Field
		if name == "" {
			name = "non_field_errors"
		}
		fields[name] = fmt.Sprintf("expected a %s", typeErr.Type.Kind())
	case errors.As(err, &syntaxErr):
		fields["non_field_errors"] = "JSON parse error at offset " + strconv.FormatInt(syntaxErr.Offset, 10)
	default:
		fields["non_field_errors"] = err.Error()
	}

	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice", fmt.Sprint(fe.Value()))
	case "min":
		return "ensure this value is greater than or equal to " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "ensure this field has no more than " + fe.Param() + " characters"
		}
		return "ensure this value is less than or equal to " + fe.Param()
	case "email":
		return "enter a valid email address"
	case "gt":
		return "ensure this value is greater than " + fe.Param()
	default:
		return "invalid value"
	}
}

// parseID reads a positive integer path parameter.
func parseID(c *gin.Context, invalid error) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}
