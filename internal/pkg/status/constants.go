package status

// Status represents a per-file workflow instance state
type Status int

const (
	// Uploaded value
	Uploaded Status = iota + 1
	// Working step
	Working
	// Completed - final state
	Completed
	// Failed - final state with error
	Failed
)

var (
	statusName = map[Status]string{Uploaded: "UPLOADED", Working: "Working",
		Completed: "COMPLETED", Failed: "FAILED"}
	nameStatus = map[string]Status{"UPLOADED": Uploaded, "Working": Working,
		"COMPLETED": Completed, "FAILED": Failed}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// ErrCode indicates the failure class recorded on a status row
type ErrCode int

const (
	// ECServiceError - internal or adapter failure
	ECServiceError ErrCode = iota + 1
	// ECTimeout - a pipeline step exceeded its time budget
	ECTimeout
	// ECBadInput - the audio could not be processed by a backend
	ECBadInput
)

var errCodeName = map[ErrCode]string{ECServiceError: "SERVICE_ERROR",
	ECTimeout: "TIMEOUT", ECBadInput: "BAD_INPUT"}

func (ec ErrCode) String() string {
	return errCodeName[ec]
}
