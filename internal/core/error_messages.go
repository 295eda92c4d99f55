package core

// error_messages.go maps technical errors to messages an administrator can
// act on. Each message carries a code that support staff can look up:
//
//	DB001-DB007     storage constraint and connection failures
//	VAL001-VAL002   row validation and department targeting
//	FILE001-FILE005 upload payload problems
//	UPL002-UPL008   intake, staging, corrections and request lifecycle
//	MAIL001-MAIL003 notification delivery
//	RATE001         request throttling
//	ERR000          anything else; check the logs for the technical error
//
// Typed errors are matched first with errors.Is/As. Remaining errors are
// matched case-insensitively by substring; the first matching pattern wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// UnknownDepartmentError is returned by question stores when a row targets
// department names that do not exist.
type UnknownDepartmentError struct {
	Names []string
}

func (e *UnknownDepartmentError) Error() string {
	return "unknown department: " + strings.Join(e.Names, ", ")
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrFileTooLarge, UserMessage{"The file exceeds the maximum upload size", "Split the questions into smaller files", "FILE001"}},
	{ErrUnsupportedUpload, UserMessage{"This file type is not accepted", "Upload a .csv, .tsv, .txt or .xlsx file", "FILE004"}},
	{ErrTooManyUploads, UserMessage{"The system is busy processing other imports", "Please wait a moment and try again", "UPL002"}},
	{ErrBatchNotFound, UserMessage{"There is no import waiting for review", "The import may have expired. Please upload the file again", "UPL003"}},
	{ErrUnknownRow, UserMessage{"A correction refers to a row that is not in the import", "Reload the import and submit the corrections again", "UPL006"}},
	{ErrUnknownField, UserMessage{"A correction refers to an unknown column", "Only question columns can be corrected", "UPL007"}},
}

var errorPatterns = []errorPattern{
	{"invalid recipient address", UserMessage{"A recipient has an invalid e-mail address", "Correct the address in the user directory", "MAIL002"}},
	{"notifications are disabled", UserMessage{"Notifications are turned off", "Configure a mail transport and restart the server", "MAIL003"}},
	{"mail transport", UserMessage{"A notification e-mail could not be delivered", "Check the mail transport settings", "MAIL001"}},
	{"duplicate key", UserMessage{"A record with this key already exists", "Review the row for duplicates", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Review the row for duplicates", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review the row for duplicates", "DB002"}},
	{"violates check constraint", UserMessage{"A value is outside the allowed range", "Correct the row and try again", "DB003"}},
	{"violates foreign key", UserMessage{"The row refers to a record that does not exist", "Check the department names", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"The database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"The database was busy with conflicting operations", "Please try again", "DB007"}},
	{"context canceled", UserMessage{"The request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"The request timed out", "Try a smaller file or try again later", "UPL005"}},
	{"timeout", UserMessage{"The operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"not a valid corrections map", UserMessage{"The corrections could not be read", "Send a JSON object keyed by row number", "UPL008"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FILE005"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a user-facing message. nil maps to the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		ferr *FormatError
		eerr *EncodingError
		verr *ValidationError
		derr *UnknownDepartmentError
	)
	switch {
	case errors.As(err, &ferr):
		return UserMessage{
			Message: "The file could not be read: " + ferr.Reason,
			Action:  "Check that the first row holds the column names and the columns are separated by commas, semicolons or tabs",
			Code:    "FILE002",
		}
	case errors.As(err, &eerr):
		return UserMessage{
			Message: fmt.Sprintf("The file contains characters that are not valid %s", eerr.Charset),
			Action:  "Save the file with UTF-8 encoding",
			Code:    "FILE003",
		}
	case errors.As(err, &derr):
		return UserMessage{
			Message: "Unknown department: " + strings.Join(derr.Names, ", "),
			Action:  "Use existing department names, or leave the column empty for all departments",
			Code:    "VAL002",
		}
	case errors.As(err, &verr):
		return UserMessage{
			Message: "Invalid values in: " + strings.Join(verr.Fields.Names(), ", "),
			Action:  "Correct the highlighted fields",
			Code:    "VAL001",
		}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
