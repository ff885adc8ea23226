package models

import (
	"fmt"
	"strings"
)

// Context selects the pipeline a code request runs through
type Context string

const (
	ContextNewTool              Context = "NEW_TOOL"
	ContextUnitTestScaffold     Context = "GENERATE_UNIT_TEST_SCAFFOLD"
	ContextHierarchicalOutline  Context = "EXPERIMENTAL_HIERARCHICAL_OUTLINE"
	ContextHierarchicalDetails  Context = "EXPERIMENTAL_HIERARCHICAL_FULL_TOOL"
	ContextHierarchicalComplete Context = "HIERARCHICAL_GEN_COMPLETE_TOOL"
	ContextSelfFix              Context = "SELF_FIX_TOOL"
	ContextGranularRefactor     Context = "GRANULAR_CODE_REFACTOR"
)

var allContexts = []Context{
	ContextNewTool,
	ContextUnitTestScaffold,
	ContextHierarchicalOutline,
	ContextHierarchicalDetails,
	ContextHierarchicalComplete,
	ContextSelfFix,
	ContextGranularRefactor,
}

// ParseContext maps a wire value onto the closed set of contexts
func ParseContext(s string) (Context, error) {
	for _, c := range allContexts {
		if string(c) == strings.TrimSpace(s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported context %q", s)
}

// IsModify reports whether the context belongs to ModifyCode
func (c Context) IsModify() bool {
	return c == ContextSelfFix || c == ContextGranularRefactor
}

// Saveable reports whether the context produces a single file that may be
// written to a target path.
func (c Context) Saveable() bool {
	switch c {
	case ContextNewTool, ContextUnitTestScaffold, ContextHierarchicalComplete:
		return true
	}
	return false
}

// Status is the terminal outcome of a code request
type Status string

const (
	StatusSuccess                  Status = "SUCCESS"
	StatusLLMNoOutput              Status = "ERROR_LLM_NO_OUTPUT"
	StatusSavingCode               Status = "ERROR_SAVING_CODE"
	StatusNoOriginalCode           Status = "ERROR_NO_ORIGINAL_CODE"
	StatusLLMNoSuggestion          Status = "ERROR_LLM_NO_SUGGESTION"
	StatusApplyingChange           Status = "ERROR_APPLYING_CHANGE"
	StatusOutlineFailed            Status = "ERROR_OUTLINE_FAILED"
	StatusOutlineParsing           Status = "ERROR_OUTLINE_PARSING"
	StatusHierarchicalAssembled    Status = "SUCCESS_HIERARCHICAL_ASSEMBLED"
	StatusPartialAssembled         Status = "PARTIAL_HIERARCHICAL_ASSEMBLED"
	StatusAssemblyFailed           Status = "ERROR_ASSEMBLY_FAILED"
	StatusSavingAssembledCode      Status = "ERROR_SAVING_ASSEMBLED_CODE"
	StatusLLMProviderMissing       Status = "ERROR_LLM_PROVIDER_MISSING"
	StatusUnsupportedLanguage      Status = "ERROR_UNSUPPORTED_LANGUAGE"
	StatusUnsupportedContext       Status = "ERROR_UNSUPPORTED_CONTEXT"
	StatusMetadataParsing          Status = "ERROR_METADATA_PARSING"
	StatusMissingDetails           Status = "ERROR_MISSING_DETAILS"
	StatusSelfModServiceMissing    Status = "ERROR_SELF_MOD_SERVICE_MISSING"
	StatusMissingSectionIdentifier Status = "ERROR_MISSING_SECTION_IDENTIFIER"
	StatusOutlineGenerated         Status = "SUCCESS_OUTLINE_GENERATED"
	StatusDetailsGenerated         Status = "SUCCESS_HIERARCHICAL_DETAILS_GENERATED"
	StatusPartialDetailsGenerated  Status = "PARTIAL_HIERARCHICAL_DETAILS_GENERATED"
	StatusDetailGenerationFailed   Status = "ERROR_DETAIL_GENERATION_FAILED"
	StatusCancelled                Status = "ERROR_CANCELLED"
	StatusGenerateUnexpected       Status = "ERROR_GENERATE_CODE_UNEXPECTED"
	StatusModifyUnexpected         Status = "ERROR_MODIFY_CODE_UNEXPECTED"
)

// IsSuccess reports whether the status counts as a (possibly partial) success
func (s Status) IsSuccess() bool {
	switch s {
	case StatusSuccess, StatusHierarchicalAssembled, StatusPartialAssembled,
		StatusOutlineGenerated, StatusDetailsGenerated, StatusPartialDetailsGenerated:
		return true
	}
	return false
}

// LLMOverrides are per-request replacements for the default model parameters
type LLMOverrides struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// GenerationRequest is one call into the code service. It is built once and
// never mutated.
type GenerationRequest struct {
	Context Context `json:"context"`

	// Payload is the tool description, the code to scaffold tests for, or the
	// modification instruction, depending on Context.
	Payload    string `json:"request_payload"`
	Language   string `json:"language,omitempty"`
	TargetPath string `json:"target_path,omitempty"`

	LLMOverrides      *LLMOverrides          `json:"llm_config_overrides,omitempty"`
	AdditionalContext map[string]interface{} `json:"additional_context,omitempty"`

	// Modify contexts only
	ExistingCode *string `json:"existing_code,omitempty"`
	ModulePath   string  `json:"module_path,omitempty"`
	FunctionName string  `json:"function_name,omitempty"`
	ApplyChanges bool    `json:"apply_changes,omitempty"`
}

// StringContext returns an additional-context value when it is a non-empty string
func (r GenerationRequest) StringContext(key string) (string, bool) {
	v, ok := r.AdditionalContext[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// GenerationResult is the terminal, JSON-serializable answer to a request
type GenerationResult struct {
	TaskID           string                 `json:"task_id,omitempty"`
	Status           Status                 `json:"status"`
	Code             string                 `json:"generated_code,omitempty"`
	Error            string                 `json:"error_message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Diff             string                 `json:"diff,omitempty"`
	SavedToPath      string                 `json:"saved_to_path,omitempty"`
	Outline          *Outline               `json:"parsed_outline,omitempty"`
	ComponentResults ComponentResults       `json:"component_details,omitempty"`
	Logs             []string               `json:"logs,omitempty"`
}
