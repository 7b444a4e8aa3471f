package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrUserNotFound = &AppError{Code: "USER_001", Message: "user not found"}
	ErrUserInactive = &AppError{Code: "USER_002", Message: "user is inactive"}

	ErrMedicineNotFound  = &AppError{Code: "MED_001", Message: "medicine not found"}
	ErrInsufficientStock = &AppError{Code: "MED_002", Message: "insufficient medicine stock"}
	ErrInvalidReminder   = &AppError{Code: "MED_003", Message: "reminder time must be HH:MM"}

	ErrIntakeNotFound     = &AppError{Code: "INTAKE_001", Message: "intake record not found"}
	ErrInvalidIntakeState = &AppError{Code: "INTAKE_002", Message: "invalid intake status"}

	ErrHealthRecordNotFound = &AppError{Code: "HEALTH_001", Message: "health record not found"}
	ErrInvalidVitals        = &AppError{Code: "HEALTH_002", Message: "vitals out of recordable range"}

	ErrAlertNotFound    = &AppError{Code: "ALERT_001", Message: "alert not found"}
	ErrEvaluationFailed = &AppError{Code: "ALERT_002", Message: "alert condition evaluation failed"}

	ErrRiskServiceUnavailable = &AppError{Code: "PREDICT_001", Message: "risk service unavailable"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
