package models

// Operation names the CodeService entry point an async job calls
type Operation string

const (
	OperationGenerate Operation = "generate"
	OperationModify   Operation = "modify"
)

// CodeJobInput is the payload of the code generation workflow
type CodeJobInput struct {
	JobID     string            `json:"job_id"`
	Operation Operation         `json:"operation"`
	Request   GenerationRequest `json:"request"`
}

// CodeJobStatus is what the job status endpoint reports
type CodeJobStatus struct {
	JobID  string            `json:"job_id"`
	State  string            `json:"state"`
	Result *GenerationResult `json:"result,omitempty"`
}
