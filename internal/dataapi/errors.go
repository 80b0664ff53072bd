package dataapi

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"

	"redshift-orders/internal/domain"
)

var (
	retryables = retry.IsErrorRetryables(retry.DefaultRetryables)
	throttles  = retry.IsErrorThrottles(retry.DefaultThrottles)
)

// transportError classifies an SDK error. The SDK's own retry rules decide
// what is transient; a few Data API codes are added on top.
func transportError(op string, err error) *domain.TransportError {
	te := &domain.TransportError{Op: op, Err: err}
	te.Throttled = throttles.IsErrorThrottle(err) == aws.TrueTernary
	te.Retryable = te.Throttled || retryables.IsErrorRetryable(err) == aws.TrueTernary

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ActiveStatementsExceededException", "ActiveSessionsExceededException":
			te.Throttled = true
			te.Retryable = true
		case "InternalServerException", "DatabaseConnectionException":
			te.Retryable = true
		case "ValidationException", "ResourceNotFoundException", "AccessDeniedException",
			"ExecuteStatementException":
			te.Retryable = false
		}
	}
	return te
}
