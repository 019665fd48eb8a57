// SPDX-License-Identifier: MPL-2.0

package selfupdate

// Status codes of the version-check API. Zero is success.
const (
	StatusOK                  = 0
	StatusInvalidParams       = 1001
	StatusCDKExpired          = 7001
	StatusCDKIncorrect        = 7002
	StatusCDKDailyLimit       = 7003
	StatusCDKTypeMismatch     = 7004
	StatusCDKBlocked          = 7005
	StatusResourceUnavailable = 8001
	StatusInvalidOS           = 8002
	StatusInvalidArch         = 8003
	StatusInvalidChannel      = 8004
)

//nolint:gochecknoglobals // Fixed lookup table.
var statusRemarks = map[int]string{
	StatusInvalidParams:       "invalid request parameters",
	StatusCDKExpired:          "CDK expired",
	StatusCDKIncorrect:        "CDK incorrect",
	StatusCDKDailyLimit:       "CDK daily download limit reached",
	StatusCDKTypeMismatch:     "CDK type does not match the resource",
	StatusCDKBlocked:          "CDK blocked",
	StatusResourceUnavailable: "resource unavailable for this OS/arch",
	StatusInvalidOS:           "invalid OS parameter",
	StatusInvalidArch:         "invalid arch parameter",
	StatusInvalidChannel:      "invalid channel parameter",
}

// StatusRemark maps a version-check status code to a human-readable remark.
// Unmapped codes fall back to the server-provided message.
func StatusRemark(code int, msg string) string {
	if remark, ok := statusRemarks[code]; ok {
		return remark
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// IsCredentialStatus reports whether code is a CDK rejection.
func IsCredentialStatus(code int) bool {
	return code >= StatusCDKExpired && code <= StatusCDKBlocked
}

// statusError converts a non-zero status code into CredentialError or StatusError.
func statusError(code int, msg string) error {
	remark := StatusRemark(code, msg)
	if IsCredentialStatus(code) {
		return &CredentialError{Code: code, Message: remark}
	}
	return &StatusError{Code: code, Message: remark}
}
