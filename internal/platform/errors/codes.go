// Package errors provides structured error handling with machine-readable
// codes and a coarse kind used for retry and session decisions.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Credential errors
	CodeCredentialInvalid    Code = "CREDENTIAL_INVALID"
	CodeCredentialExpired    Code = "CREDENTIAL_EXPIRED"
	CodeDeviceSessionMissing Code = "DEVICE_SESSION_MISSING"

	// Session errors
	CodeSessionConflict Code = "SESSION_CONFLICT"

	// Validation errors
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeMutationTypeUnknown  Code = "MUTATION_TYPE_UNKNOWN"
	CodeMutationPayloadEmpty Code = "MUTATION_PAYLOAD_EMPTY"
	CodeJobIDEmpty           Code = "JOB_ID_EMPTY"
	CodeCrewIDEmpty          Code = "CREW_ID_EMPTY"
	CodePhaseEmpty           Code = "PHASE_EMPTY"
	CodeEntityIDEmpty        Code = "ENTITY_ID_EMPTY"
	CodeEntityNameEmpty      Code = "ENTITY_NAME_EMPTY"
	CodeScheduleTimeMissing  Code = "SCHEDULE_TIME_MISSING"

	// Login errors
	CodeLoginEmailEmpty    Code = "LOGIN_EMAIL_EMPTY"
	CodeLoginPasswordEmpty Code = "LOGIN_PASSWORD_EMPTY"
	CodeLoginRejected      Code = "LOGIN_REJECTED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Transport errors
	CodeNetworkUnavailable Code = "NETWORK_UNAVAILABLE"
	CodeServerUnavailable  Code = "SERVER_UNAVAILABLE"
)

// Kind classifies an error for retry and session-machine decisions.
type Kind int

const (
	// KindTransient marks failures that are retried silently.
	KindTransient Kind = iota
	// KindValidation marks locally rejected input, never retried.
	KindValidation
	// KindSessionConflict marks another device holding the session authority.
	KindSessionConflict
	// KindCredentialInvalid marks an unusable bearer credential or a missing
	// device-session header; it forces logout without a user choice.
	KindCredentialInvalid
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindSessionConflict:
		return "session_conflict"
	case KindCredentialInvalid:
		return "credential_invalid"
	}
	return "unknown"
}

// KindForCode maps a wire code to its kind. Unrecognized codes are
// transient so a new server-side code never strands a client.
func KindForCode(code Code) Kind {
	switch code {
	case CodeSessionConflict:
		return KindSessionConflict
	case CodeCredentialInvalid, CodeCredentialExpired, CodeDeviceSessionMissing:
		return KindCredentialInvalid
	case CodeInvalidRequest, CodeMutationTypeUnknown, CodeMutationPayloadEmpty, CodeJobIDEmpty,
		CodeCrewIDEmpty, CodePhaseEmpty, CodeEntityIDEmpty, CodeEntityNameEmpty,
		CodeScheduleTimeMissing, CodeLoginEmailEmpty, CodeLoginPasswordEmpty,
		CodeLoginRejected:
		return KindValidation
	}
	return KindTransient
}
