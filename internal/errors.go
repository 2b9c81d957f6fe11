package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidInstallment ErrorCode = "INVALID_INSTALLMENTS"
	ErrCodeInvalidDescription ErrorCode = "INVALID_DESCRIPTION"
	ErrCodeCommentRequired    ErrorCode = "COMMENT_REQUIRED"
	ErrCodeInvalidDecision    ErrorCode = "INVALID_DECISION"
	ErrCodeNoValidOffers      ErrorCode = "NO_VALID_OFFERS"
	ErrCodeTooManyOffers      ErrorCode = "TOO_MANY_OFFERS"
	ErrCodeInvalidDocument    ErrorCode = "INVALID_DOCUMENT"

	ErrCodeCreditRequestNotFound   ErrorCode = "CREDIT_REQUEST_NOT_FOUND"
	ErrCodeOfferNotFound           ErrorCode = "OFFER_NOT_FOUND"
	ErrCodeDocumentNotFound        ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeNotificationNotFound    ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodePaymentNotFound         ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeUserNotFound            ErrorCode = "USER_NOT_FOUND"
	ErrCodeClinicNotFound          ErrorCode = "CLINIC_NOT_FOUND"
	ErrCodeUnauthorizedAccess      ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeStatusChanged           ErrorCode = "STATUS_CHANGED"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"

	ErrCodePaymentFailed        ErrorCode = "PAYMENT_FAILED"
	ErrCodeProcessorFailed      ErrorCode = "PAYMENT_PROCESSOR_FAILED"
	ErrCodePaymentNotCancelable ErrorCode = "PAYMENT_NOT_CANCELABLE"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

// Error joins field messages for validation failures so logs show every rejected field.
func (e *AppError) Error() string {
	if v, ok := e.Details.(ValidationErrors); ok && len(v.Errors) > 0 {
		msgs := make([]string, 0, len(v.Errors))
		for _, fe := range v.Errors {
			msgs = append(msgs, fe.Message)
		}
		return strings.Join(msgs, "; ")
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// statusFor maps each error type to the HTTP status it is reported with.
var statusFor = map[ErrorType]int{
	ErrorTypeValidation:   http.StatusBadRequest,
	ErrorTypeNotFound:     http.StatusNotFound,
	ErrorTypeUnauthorized: http.StatusUnauthorized,
	ErrorTypeForbidden:    http.StatusForbidden,
	ErrorTypeConflict:     http.StatusConflict,
	ErrorTypeInternal:     http.StatusInternalServerError,
	ErrorTypeExternal:     http.StatusBadGateway,
}

func newAppError(t ErrorType, code ErrorCode, message string, cause error) *AppError {
	return &AppError{Type: t, Code: code, Message: message, StatusCode: statusFor[t], Cause: cause}
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeValidation, code, message, nil)
}

// NewValidationFieldError reports a single rejected field under the generic VALIDATION_FAILED code.
func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	e := newAppError(ErrorTypeValidation, ErrCodeValidationFailed, "Validation failed", nil)
	e.Details = ValidationErrors{Errors: []ValidationError{{Field: field, Message: message, Code: string(code)}}}
	return e
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeNotFound, code, message, nil)
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeUnauthorized, code, message, nil)
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeForbidden, code, message, nil)
}

// NewInternalError hides cause from clients; it only shows up in logs.
func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, cause)
}

// NewConflictError reports a request that lost a race or no longer fits the record's state.
func NewConflictError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeConflict, code, message, nil)
}

// NewExternalError reports a failure of a third-party collaborator such as the payment processor.
func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return newAppError(ErrorTypeExternal, code, message, cause)
}

var (
	ErrUnauthorizedAccess = NewForbiddenError("unauthorized access to credit request", ErrCodeUnauthorizedAccess)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is matches two AppErrors by code so sentinel values survive WithCause copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Type == t.Type
}

// Wrap returns a copy of e carrying cause. Sentinels stay untouched.
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

// publicError is the client-facing shape; Cause and StatusCode stay server side.
type publicError struct {
	Type    ErrorType   `json:"type"`
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicError{Type: e.Type, Code: e.Code, Message: e.Message, Details: e.Details})
}
