package handle

// Handle protocol response codes, as embedded in the "responseCode" field of
// REST responses.
const (
	ResponseSuccess               = 1
	ResponseError                 = 2
	ResponseServerTooBusy         = 3
	ResponseProtocolError         = 4
	ResponseOperationNotSupported = 5

	ResponseHandleNotFound      = 100
	ResponseHandleAlreadyExists = 101
	ResponseInvalidHandle       = 102

	ResponseValuesNotFound     = 200
	ResponseValueAlreadyExists = 201
	ResponseInvalidValue       = 202

	ResponseNotAuthorized        = 400
	ResponseAccessDenied         = 401
	ResponseAuthenticationNeeded = 402
	ResponseAuthenticationFailed = 403
	ResponseInvalidCredential    = 404
)

var responseCodeNames = map[int]string{
	ResponseSuccess:               "SUCCESS",
	ResponseError:                 "ERROR",
	ResponseServerTooBusy:         "SERVER_TOO_BUSY",
	ResponseProtocolError:         "PROTOCOL_ERROR",
	ResponseOperationNotSupported: "OPERATION_NOT_SUPPORTED",
	ResponseHandleNotFound:        "HANDLE_NOT_FOUND",
	ResponseHandleAlreadyExists:   "HANDLE_ALREADY_EXISTS",
	ResponseInvalidHandle:         "INVALID_HANDLE",
	ResponseValuesNotFound:        "VALUES_NOT_FOUND",
	ResponseValueAlreadyExists:    "VALUE_ALREADY_EXISTS",
	ResponseInvalidValue:          "INVALID_VALUE",
	ResponseNotAuthorized:         "NOT_AUTHORIZED",
	ResponseAccessDenied:          "ACCESS_DENIED",
	ResponseAuthenticationNeeded:  "AUTHENTICATION_NEEDED",
	ResponseAuthenticationFailed:  "AUTHENTICATION_FAILED",
	ResponseInvalidCredential:     "INVALID_CREDENTIAL",
}

// ResponseCodeName returns the protocol name of a response code, or
// "UNKNOWN".
func ResponseCodeName(code int) string {
	if name, ok := responseCodeNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}
