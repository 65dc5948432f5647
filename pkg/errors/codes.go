package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	CodeOK              ErrorCode = "OK"
	ErrCodeUnknown      ErrorCode = "COMMON_000"
	ErrCodeInternal     ErrorCode = "COMMON_001"
	ErrCodeNotFound     ErrorCode = "COMMON_002"
	ErrCodeCacheError   ErrorCode = "COMMON_003"
	ErrCodeStorageError ErrorCode = "COMMON_004"
	ErrCodeEventError   ErrorCode = "COMMON_005"
)

// Configuration error codes.  All of them are fatal: the run never starts.
const (
	ErrCodeConfigInvalid    ErrorCode = "CFG_001"
	ErrCodeConfigMissing    ErrorCode = "CFG_002"
	ErrCodeConfigLoadFailed ErrorCode = "CFG_003"
)

// Input error codes.  Malformed records are skipped with a log entry; the run
// continues with the remaining records.
const (
	ErrCodeInputMalformed    ErrorCode = "INP_001"
	ErrCodeInputMissingField ErrorCode = "INP_002"
	ErrCodeInputNoCandidates ErrorCode = "INP_003"
	ErrCodeInputParseFailed  ErrorCode = "INP_004"
)

// Modeling error codes.  One code per classified failure reason of a
// pharmacophore model build; each becomes a failure record for its target.
const (
	ErrCodeModelDownloadFailed    ErrorCode = "MDL_001"
	ErrCodeModelBuildTimeout      ErrorCode = "MDL_002"
	ErrCodeModelBuildFailed       ErrorCode = "MDL_003"
	ErrCodeModelInvalidStructure  ErrorCode = "MDL_004"
	ErrCodeModelArtifactMissing   ErrorCode = "MDL_005"
	ErrCodeModelStatusWriteFailed ErrorCode = "MDL_006"
)

// Screening error codes.  One code per classified failure reason of a
// chemical-target scoring call; each becomes a failure record for its pair.
const (
	ErrCodeScoringInvalidSMILES ErrorCode = "SCR_001"
	ErrCodeScoringTimeout       ErrorCode = "SCR_002"
	ErrCodeScoringFailed        ErrorCode = "SCR_003"
	ErrCodeResultWriteFailed    ErrorCode = "SCR_004"
)

// Aggregation error codes.  Inconsistent intermediate state is fatal for the
// aggregation stage; no report is produced from corrupted inputs.
const (
	ErrCodeAggregationInconsistent ErrorCode = "AGG_001"
	ErrCodeAggregationJoinFailed   ErrorCode = "AGG_002"
	ErrCodeReportWriteFailed       ErrorCode = "AGG_003"
)

// ErrorClass groups codes by how the pipeline reacts to them, mirroring the
// four failure-handling policies of the run loop.
type ErrorClass int

const (
	// ClassUnknown covers codes with no registered policy.
	ClassUnknown ErrorClass = iota
	// ClassConfig aborts the run before any work starts.
	ClassConfig
	// ClassMalformedInput skips the offending record and continues.
	ClassMalformedInput
	// ClassCollaborator records a per-unit failure and continues.
	ClassCollaborator
	// ClassInconsistency aborts the current stage.
	ClassInconsistency
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassMalformedInput:
		return "malformed_input"
	case ClassCollaborator:
		return "collaborator_failure"
	case ClassInconsistency:
		return "aggregation_inconsistency"
	default:
		return "unknown"
	}
}

// ClassForCode returns the handling policy for an ErrorCode, keyed on the
// module prefix so new codes inherit the right policy automatically.
func ClassForCode(code ErrorCode) ErrorClass {
	switch ModuleForCode(code) {
	case "CFG":
		return ClassConfig
	case "INP":
		return ClassMalformedInput
	case "MDL", "SCR":
		return ClassCollaborator
	case "AGG":
		return ClassInconsistency
	default:
		return ClassUnknown
	}
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:     "internal error",
	ErrCodeNotFound:     "resource not found",
	ErrCodeCacheError:   "cache error",
	ErrCodeStorageError: "storage error",
	ErrCodeEventError:   "event publish error",

	ErrCodeConfigInvalid:    "invalid configuration",
	ErrCodeConfigMissing:    "missing configuration",
	ErrCodeConfigLoadFailed: "failed to load configuration",

	ErrCodeInputMalformed:    "malformed input record",
	ErrCodeInputMissingField: "input record missing required field",
	ErrCodeInputNoCandidates: "chemical has no candidate targets",
	ErrCodeInputParseFailed:  "failed to parse input file",

	ErrCodeModelDownloadFailed:    "structure download failed",
	ErrCodeModelBuildTimeout:      "model build timed out",
	ErrCodeModelBuildFailed:       "model build failed",
	ErrCodeModelInvalidStructure:  "structure unusable for modeling",
	ErrCodeModelArtifactMissing:   "model artifact missing",
	ErrCodeModelStatusWriteFailed: "failed to persist model status",

	ErrCodeScoringInvalidSMILES: "SMILES rejected by scorer",
	ErrCodeScoringTimeout:       "scoring timed out",
	ErrCodeScoringFailed:        "scoring failed",
	ErrCodeResultWriteFailed:    "failed to persist screening result",

	ErrCodeAggregationInconsistent: "inconsistent intermediate state",
	ErrCodeAggregationJoinFailed:   "score join failed",
	ErrCodeReportWriteFailed:       "failed to write report",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
