package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is an interaction model status code.
type Status uint8

const (
	StatusSuccess                Status = 0x00
	StatusFailure                Status = 0x01
	StatusInvalidSubscription    Status = 0x7D
	StatusUnsupportedAccess      Status = 0x7E
	StatusUnsupportedEndpoint    Status = 0x7F
	StatusInvalidAction          Status = 0x80
	StatusUnsupportedCommand     Status = 0x81
	StatusInvalidCommand         Status = 0x85
	StatusUnsupportedAttribute   Status = 0x86
	StatusConstraintError        Status = 0x87
	StatusUnsupportedWrite       Status = 0x88
	StatusResourceExhausted      Status = 0x89
	StatusNotFound               Status = 0x8B
	StatusUnreportableAttribute  Status = 0x8C
	StatusInvalidDataType        Status = 0x8D
	StatusUnsupportedRead        Status = 0x8F
	StatusDataVersionMismatch    Status = 0x92
	StatusTimeout                Status = 0x94
	StatusBusy                   Status = 0x9C
	StatusUnsupportedCluster     Status = 0xC3
	StatusNoUpstreamSubscription Status = 0xC5
	StatusNeedsTimedInteraction  Status = 0xC6
	StatusUnsupportedEvent       Status = 0xC7
	StatusPathsExhausted         Status = 0xC8
	StatusTimedRequestMismatch   Status = 0xC9
	StatusFailsafeRequired       Status = 0xCA
	StatusInvalidInState         Status = 0xCB
	StatusNoCommandResponse      Status = 0xCC
)

var statusNames = map[Status]string{
	StatusSuccess:                "SUCCESS",
	StatusFailure:                "FAILURE",
	StatusInvalidSubscription:    "INVALID_SUBSCRIPTION",
	StatusUnsupportedAccess:      "UNSUPPORTED_ACCESS",
	StatusUnsupportedEndpoint:    "UNSUPPORTED_ENDPOINT",
	StatusInvalidAction:          "INVALID_ACTION",
	StatusUnsupportedCommand:     "UNSUPPORTED_COMMAND",
	StatusInvalidCommand:         "INVALID_COMMAND",
	StatusUnsupportedAttribute:   "UNSUPPORTED_ATTRIBUTE",
	StatusConstraintError:        "CONSTRAINT_ERROR",
	StatusUnsupportedWrite:       "UNSUPPORTED_WRITE",
	StatusResourceExhausted:      "RESOURCE_EXHAUSTED",
	StatusNotFound:               "NOT_FOUND",
	StatusUnreportableAttribute:  "UNREPORTABLE_ATTRIBUTE",
	StatusInvalidDataType:        "INVALID_DATA_TYPE",
	StatusUnsupportedRead:        "UNSUPPORTED_READ",
	StatusDataVersionMismatch:    "DATA_VERSION_MISMATCH",
	StatusTimeout:                "TIMEOUT",
	StatusBusy:                   "BUSY",
	StatusUnsupportedCluster:     "UNSUPPORTED_CLUSTER",
	StatusNoUpstreamSubscription: "NO_UPSTREAM_SUBSCRIPTION",
	StatusNeedsTimedInteraction:  "NEEDS_TIMED_INTERACTION",
	StatusUnsupportedEvent:       "UNSUPPORTED_EVENT",
	StatusPathsExhausted:         "PATHS_EXHAUSTED",
	StatusTimedRequestMismatch:   "TIMED_REQUEST_MISMATCH",
	StatusFailsafeRequired:       "FAILSAFE_REQUIRED",
	StatusInvalidInState:         "INVALID_IN_STATE",
	StatusNoCommandResponse:      "NO_COMMAND_RESPONSE",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// ParseStatus accepts a status name (case-insensitive) or a decimal or
// 0x-prefixed numeric code.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for code, name := range statusNames {
		if name == upper {
			return code, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown status %q", s)
	}
	return Status(n), nil
}

// SameStatus reports whether two status strings denote the same code.
// Unparseable strings compare literally.
func SameStatus(a, b string) bool {
	sa, errA := ParseStatus(a)
	sb, errB := ParseStatus(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return sa == sb
}
