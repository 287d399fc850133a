package errors

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Fields returns err's code, retryability and context as log fields.
// Errors without an AppError in their chain yield no fields.
func Fields(err error) logrus.Fields {
	appErr, ok := As(err)
	if !ok {
		return logrus.Fields{}
	}
	fields := logrus.Fields{
		"error_code": appErr.Code,
		"retryable":  appErr.Retryable,
	}
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// Log writes err with its structured fields. Failures the caller caused
// (bad input, unknown IDs, forbidden transitions) are logged at info; the
// rest at error.
func Log(logger logrus.FieldLogger, err error, msg string) {
	entry := logger.WithError(err).WithFields(Fields(err))
	if HTTPStatusCode(err) < http.StatusInternalServerError {
		entry.Info(msg)
		return
	}
	entry.Error(msg)
}
