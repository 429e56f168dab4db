package constants

// JobStatus is the state of one batch extraction job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusExtracted JobStatus = "EXTRACTED" // provider replied and fields were mapped
	JobStatusSaved     JobStatus = "SAVED"
	JobStatusFailed    JobStatus = "FAILED"
)
