package models

import "time"

// TaskType classifies the work a code request performs
type TaskType string

const (
	TaskToolCreation      TaskType = "AGENT_TOOL_CREATION"
	TaskToolModification  TaskType = "AGENT_TOOL_MODIFICATION"
	TaskMiscCodeGen       TaskType = "MISC_CODE_GENERATION"
	TaskPlanningStructure TaskType = "PLANNING_CODE_STRUCTURE"
)

// TaskTypeFor maps a request context to the task type it is tracked under
func TaskTypeFor(c Context) TaskType {
	switch c {
	case ContextNewTool, ContextHierarchicalComplete:
		return TaskToolCreation
	case ContextSelfFix, ContextGranularRefactor:
		return TaskToolModification
	case ContextHierarchicalOutline, ContextHierarchicalDetails:
		return TaskPlanningStructure
	}
	return TaskMiscCodeGen
}

// TaskStatus represents the lifecycle state of a tracked task
type TaskStatus string

const (
	TaskInitializing         TaskStatus = "INITIALIZING"
	TaskPlanningCode         TaskStatus = "PLANNING_CODE_STRUCTURE"
	TaskGeneratingCode       TaskStatus = "GENERATING_CODE"
	TaskApplyingChanges      TaskStatus = "APPLYING_CHANGES"
	TaskCompleted            TaskStatus = "COMPLETED_SUCCESSFULLY"
	TaskFailedPreReview      TaskStatus = "FAILED_PRE_REVIEW"
	TaskFailedCodeGeneration TaskStatus = "FAILED_CODE_GENERATION"
	TaskFailedDuringApply    TaskStatus = "FAILED_DURING_APPLY"
	TaskUserCancelled        TaskStatus = "USER_CANCELLED"
	TaskFailedUnknown        TaskStatus = "FAILED_UNKNOWN"
)

// Terminal reports whether no further transitions are expected
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailedPreReview, TaskFailedCodeGeneration,
		TaskFailedDuringApply, TaskUserCancelled, TaskFailedUnknown:
		return true
	}
	return false
}

// Task is one entry of the task ledger
type Task struct {
	ID           string     `json:"id"`
	Type         TaskType   `json:"type"`
	Context      Context    `json:"context"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	ResultStatus Status     `json:"result_status,omitempty"`
	CodeHash     string     `json:"code_hash,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskStatus maps a terminal request status onto the task lifecycle
func (s Status) TaskStatus() TaskStatus {
	switch s {
	case StatusSuccess, StatusHierarchicalAssembled, StatusPartialAssembled,
		StatusOutlineGenerated, StatusDetailsGenerated, StatusPartialDetailsGenerated:
		return TaskCompleted
	case StatusLLMProviderMissing, StatusUnsupportedLanguage, StatusUnsupportedContext,
		StatusMissingDetails, StatusSelfModServiceMissing, StatusNoOriginalCode,
		StatusMissingSectionIdentifier:
		return TaskFailedPreReview
	case StatusSavingCode, StatusSavingAssembledCode, StatusApplyingChange:
		return TaskFailedDuringApply
	case StatusCancelled:
		return TaskUserCancelled
	case StatusLLMNoOutput, StatusLLMNoSuggestion, StatusOutlineFailed, StatusOutlineParsing,
		StatusAssemblyFailed, StatusMetadataParsing, StatusDetailGenerationFailed:
		return TaskFailedCodeGeneration
	}
	return TaskFailedUnknown
}
