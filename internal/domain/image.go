package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	OperationResize = "resize"
	OperationSplit  = "split"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError reports a missing or malformed request field. It is always
// raised before any storage access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type ResizeRequest struct {
	BlobName string `json:"blob_name" validate:"required"`
	Width    int    `json:"width" validate:"required,gt=0"`
	Height   int    `json:"height" validate:"required,gt=0"`
}

type SplitRequest struct {
	BlobName string `json:"blob_name" validate:"required"`
}

func (r ResizeRequest) Validate() error {
	return validationError(validate.Struct(r), "'blob_name', 'width' and 'height' are required.")
}

func (r SplitRequest) Validate() error {
	return validationError(validate.Struct(r), "'blob_name' is required.")
}

func validationError(err error, requiredMessage string) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field(), Message: requiredMessage}
		}
	}

	first := fieldErrs[0]
	return &ValidationError{
		Field:   first.Field(),
		Message: fmt.Sprintf("'%s' must be a positive integer.", first.Field()),
	}
}

// ResizedBlobName derives the destination name of a resize. Identical inputs
// always map to the same name so a rerun overwrites the previous output.
func ResizedBlobName(blobName string, width, height int) string {
	return fmt.Sprintf("resized_%dx%d_%s", width, height, blobName)
}

func TopBlobName(blobName string) string {
	return "top_" + blobName
}

func BottomBlobName(blobName string) string {
	return "bottom_" + blobName
}

type ResizeResponse struct {
	Message string `json:"message"`
	BlobURL string `json:"blob_url"`
}

type SplitResponse struct {
	Message       string `json:"message"`
	TopBlobURL    string `json:"top_blob_url"`
	BottomBlobURL string `json:"bottom_blob_url"`
}
