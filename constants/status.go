package constants

// ConversionStatus is the outward status of a conversion result.
type ConversionStatus string

const (
	ConversionSuccess      ConversionStatus = "SUCCESS"
	ConversionFailed       ConversionStatus = "FAILED"
	ConversionNotSupported ConversionStatus = "NOT_SUPPORTED"
)

// JobStatus is the canonical status for rows in conversion_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued       JobStatus = "QUEUED"
	JobStatusRunning      JobStatus = "RUNNING"
	JobStatusSuccess      JobStatus = "SUCCESS"
	JobStatusFailed       JobStatus = "FAILED"        // terminal failure
	JobStatusNotSupported JobStatus = "NOT_SUPPORTED" // terminal, no backend for the input
)

// JobStatusFor maps a finished conversion to its terminal job status.
func JobStatusFor(s ConversionStatus) JobStatus {
	switch s {
	case ConversionSuccess:
		return JobStatusSuccess
	case ConversionNotSupported:
		return JobStatusNotSupported
	default:
		return JobStatusFailed
	}
}
