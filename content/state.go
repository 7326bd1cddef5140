// Package content defines the workflow state document, the step
// functions that transform it, and the three workflow graphs built
// from them (content creation, multi-model, optimization).
package content

import "fmt"

// ReviewResults is the structured output of a review step.
type ReviewResults struct {
	Score       float64  `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`

	// ParseError carries the JSON decode failure when the model reply
	// was not valid JSON. The score is zeroed in that case rather than
	// failing the run, so downstream routing treats the draft as
	// lowest-quality; callers that want strict handling check this
	// field (or match ErrMalformedReview).
	ParseError string `json:"parse_error,omitempty"`
}

// Task is one unit of work in the multi-model fan-out.
type Task struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// State is the document carried through a workflow run. Nodes return
// partial States (deltas) that Reduce merges into the prior value;
// fields left at their zero value in a delta do not overwrite.
//
// Optional booleans and scores are pointers so a delta can distinguish
// "not touched" from "explicitly false / zero".
type State struct {
	InputContent  string                 `json:"input_content,omitempty"`
	ChannelID     string                 `json:"channel_id,omitempty"`
	ChannelConfig map[string]interface{} `json:"channel_config,omitempty"`

	Draft            string         `json:"draft,omitempty"`
	OptimizedContent string         `json:"optimized_content,omitempty"`
	ReviewResults    *ReviewResults `json:"review_results,omitempty"`
	QualityScore     *float64       `json:"quality_score,omitempty"`
	NeedsOptimize    *bool          `json:"needs_optimization,omitempty"`
	FinalOutput      string         `json:"final_output,omitempty"`

	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CurrentStep string                 `json:"current_step,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`

	// Content-creation extensions.
	LLMEndpoint        string `json:"llm_endpoint,omitempty"`
	OptimizationRounds int    `json:"optimization_rounds,omitempty"`

	// Multi-model extensions.
	Tasks            []Task                 `json:"tasks,omitempty"`
	ModelAssignments map[string]string      `json:"model_assignments,omitempty"`
	ParallelResults  map[string]interface{} `json:"parallel_results,omitempty"`
	MergedResult     string                 `json:"merged_result,omitempty"`
	ConsistencyOK    *bool                  `json:"consistency_check,omitempty"`

	// Optimization extensions.
	ReviewModel      string `json:"review_model,omitempty"`
	OptimizeModel    string `json:"optimization_model,omitempty"`
	MaxOptimizeRound int    `json:"max_optimization_rounds,omitempty"`
	ShouldPublish    *bool  `json:"should_publish,omitempty"`
}

// StepLabel returns the current step for checkpoint metadata.
func (s State) StepLabel() string { return s.CurrentStep }

// NeedsOptimization reports the routing flag, defaulting to false when
// unset so a malformed state degrades toward finishing.
func (s State) NeedsOptimization() bool {
	return s.NeedsOptimize != nil && *s.NeedsOptimize
}

// Score returns the quality score, 0 when unset.
func (s State) Score() float64 {
	if s.QualityScore == nil {
		return 0
	}
	return *s.QualityScore
}

// PublishApproved reports the final-review verdict, defaulting to false.
func (s State) PublishApproved() bool {
	return s.ShouldPublish != nil && *s.ShouldPublish
}

// Reduce merges a node's delta into the prior state and returns the
// result. Neither argument is mutated.
//
// Merge rules:
//   - strings: non-empty delta value overrides
//   - pointers: non-nil delta value overrides
//   - ints: non-zero delta value overrides
//   - maps: keys merged additively, delta keys override
//   - errors/warnings: delta entries are appended, never replace
//   - tasks: non-nil delta slice replaces
func Reduce(prev, delta State) State {
	out := prev

	setStr(&out.InputContent, delta.InputContent)
	setStr(&out.ChannelID, delta.ChannelID)
	setStr(&out.Draft, delta.Draft)
	setStr(&out.OptimizedContent, delta.OptimizedContent)
	setStr(&out.FinalOutput, delta.FinalOutput)
	setStr(&out.CurrentStep, delta.CurrentStep)
	setStr(&out.LLMEndpoint, delta.LLMEndpoint)
	setStr(&out.MergedResult, delta.MergedResult)
	setStr(&out.ReviewModel, delta.ReviewModel)
	setStr(&out.OptimizeModel, delta.OptimizeModel)

	if delta.ReviewResults != nil {
		out.ReviewResults = delta.ReviewResults
	}
	if delta.QualityScore != nil {
		out.QualityScore = delta.QualityScore
	}
	if delta.NeedsOptimize != nil {
		out.NeedsOptimize = delta.NeedsOptimize
	}
	if delta.ConsistencyOK != nil {
		out.ConsistencyOK = delta.ConsistencyOK
	}
	if delta.ShouldPublish != nil {
		out.ShouldPublish = delta.ShouldPublish
	}

	if delta.OptimizationRounds != 0 {
		out.OptimizationRounds = delta.OptimizationRounds
	}
	if delta.MaxOptimizeRound != 0 {
		out.MaxOptimizeRound = delta.MaxOptimizeRound
	}

	out.ChannelConfig = mergeMap(prev.ChannelConfig, delta.ChannelConfig)
	out.Metadata = mergeMap(prev.Metadata, delta.Metadata)
	out.ParallelResults = mergeMap(prev.ParallelResults, delta.ParallelResults)
	out.ModelAssignments = mergeStrMap(prev.ModelAssignments, delta.ModelAssignments)

	out.Errors = appendList(prev.Errors, delta.Errors)
	out.Warnings = appendList(prev.Warnings, delta.Warnings)

	if delta.Tasks != nil {
		out.Tasks = delta.Tasks
	}

	return out
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeMap(prev, delta map[string]interface{}) map[string]interface{} {
	if len(delta) == 0 {
		return prev
	}
	out := make(map[string]interface{}, len(prev)+len(delta))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func mergeStrMap(prev, delta map[string]string) map[string]string {
	if len(delta) == 0 {
		return prev
	}
	out := make(map[string]string, len(prev)+len(delta))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// appendList returns a fresh slice so reduced states never alias the
// inputs' backing arrays.
func appendList(prev, delta []string) []string {
	if len(delta) == 0 {
		return prev
	}
	out := make([]string, 0, len(prev)+len(delta))
	out = append(out, prev...)
	out = append(out, delta...)
	return out
}

// MetadataString reads a string-valued metadata key, "" when absent or
// not a string.
func (s State) MetadataString(key string) string {
	if s.Metadata == nil {
		return ""
	}
	if v, ok := s.Metadata[key].(string); ok {
		return v
	}
	return ""
}

func ptrFloat(v float64) *float64 { return &v }
func ptrBool(v bool) *bool        { return &v }

func errorEntry(node string, err error) string {
	return fmt.Sprintf("%s: %v", node, err)
}
