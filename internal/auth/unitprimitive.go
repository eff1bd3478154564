package auth

// UnitPrimitive is a named capability. It both identifies a feature and gates
// access to it: prompts and tools declare the primitives they require, callers
// carry the primitives they were granted.
type UnitPrimitive string

const (
	UnitPrimitiveCodeSuggestions          UnitPrimitive = "code_suggestions"
	UnitPrimitiveCompleteCode             UnitPrimitive = "complete_code"
	UnitPrimitiveGenerateCode             UnitPrimitive = "generate_code"
	UnitPrimitiveDuoChat                  UnitPrimitive = "duo_chat"
	UnitPrimitiveDocumentationSearch      UnitPrimitive = "documentation_search"
	UnitPrimitiveExplainVulnerability     UnitPrimitive = "explain_vulnerability"
	UnitPrimitiveGenerateIssueDescription UnitPrimitive = "generate_issue_description"
	UnitPrimitiveAskIssue                 UnitPrimitive = "ask_issue"
	UnitPrimitiveAskEpic                  UnitPrimitive = "ask_epic"
	UnitPrimitiveAnalyzeCIJobFailure      UnitPrimitive = "analyze_ci_job_failure"
	UnitPrimitiveExplainCode              UnitPrimitive = "explain_code"
	UnitPrimitiveSummarizeComments        UnitPrimitive = "summarize_comments"
)

var knownPrimitives = map[UnitPrimitive]struct{}{
	UnitPrimitiveCodeSuggestions:          {},
	UnitPrimitiveCompleteCode:             {},
	UnitPrimitiveGenerateCode:             {},
	UnitPrimitiveDuoChat:                  {},
	UnitPrimitiveDocumentationSearch:      {},
	UnitPrimitiveExplainVulnerability:     {},
	UnitPrimitiveGenerateIssueDescription: {},
	UnitPrimitiveAskIssue:                 {},
	UnitPrimitiveAskEpic:                  {},
	UnitPrimitiveAnalyzeCIJobFailure:      {},
	UnitPrimitiveExplainCode:              {},
	UnitPrimitiveSummarizeComments:        {},
}

// ParseUnitPrimitive returns the primitive for s, or false when s is not a
// known capability. Unknown scopes in tokens are dropped, not rejected.
func ParseUnitPrimitive(s string) (UnitPrimitive, bool) {
	p := UnitPrimitive(s)
	_, ok := knownPrimitives[p]
	return p, ok
}
