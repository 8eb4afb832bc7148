package store

import "time"

// SessionStatus enumerates the lifecycle of a Session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session is a top-level run of a CCA workflow for a user-supplied task.
type Session struct {
	ID             string
	Task           string
	Status         SessionStatus
	CoderAgent     string
	CoderModel     string
	Workspace      string
	ConfigSnapshot string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	CompletedAt    *time.Time
}

// IterationStatus enumerates the lifecycle of one Iteration.
type IterationStatus string

const (
	IterationCoding    IterationStatus = "coding"
	IterationReviewing IterationStatus = "reviewing"
	IterationDeciding  IterationStatus = "deciding"
	IterationCompleted IterationStatus = "completed"
)

// Iteration is one cycle of the CCA loop within a session.
type Iteration struct {
	ID          string
	SessionID   string
	Number      int
	Status      IterationStatus
	StartedAt   time.Time
	CompletedAt *time.Time
}

// ChangeOperation enumerates the kind of file mutation a ProposedChange represents.
type ChangeOperation string

const (
	OpCreate ChangeOperation = "create"
	OpModify ChangeOperation = "modify"
	OpDelete ChangeOperation = "delete"
)

// ChangeStatus enumerates the lifecycle of a ProposedChange.
type ChangeStatus string

const (
	ChangeProposed ChangeStatus = "proposed"
	ChangeApproved ChangeStatus = "approved"
	ChangeRejected ChangeStatus = "rejected"
	ChangeApplied  ChangeStatus = "applied"
	ChangeReverted ChangeStatus = "reverted"
)

// ProposedChange is a file mutation intent produced during an iteration.
type ProposedChange struct {
	ID              string
	IterationID     string
	FilePath        string
	Operation       ChangeOperation
	OriginalContent *string
	NewContent      *string
	UnifiedDiff     string
	Status          ChangeStatus
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// Validate enforces the invariant: "original content present iff
// operation in {modify, delete}".
func (c *ProposedChange) Validate() error {
	needsOriginal := c.Operation == OpModify || c.Operation == OpDelete
	hasOriginal := c.OriginalContent != nil
	if needsOriginal != hasOriginal {
		return ErrInvalidChange
	}
	return nil
}

// CriticProvider distinguishes static tooling from AI-backed critics.
type CriticProvider string

const (
	ProviderStatic CriticProvider = "static"
	ProviderAI     CriticProvider = "ai"
)

// Verdict is one critic's overall judgement of a change.
type Verdict string

const (
	VerdictApprove  Verdict = "approve"
	VerdictReject   Verdict = "reject"
	VerdictConcerns Verdict = "concerns"
	VerdictError    Verdict = "error"
)

// IssueSeverity classifies a structured issue raised by a critic.
type IssueSeverity string

const (
	SeverityError      IssueSeverity = "error"
	SeverityWarning    IssueSeverity = "warning"
	SeveritySuggestion IssueSeverity = "suggestion"
	SeverityInfo       IssueSeverity = "info"
)

// CriticIssue is one structured finding within a CriticReview.
type CriticIssue struct {
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
	File     string        `json:"file,omitempty"`
	Line     int           `json:"line,omitempty"`
	Blocking bool          `json:"blocking"`
}

// IsBlocking reports whether this issue should block auto-apply: true
// when severity is error, or when the explicit blocking flag is set.
func (i CriticIssue) IsBlocking() bool {
	return i.Severity == SeverityError || i.Blocking
}

// CriticReview is one critic's verdict on one ProposedChange.
type CriticReview struct {
	ID         string
	ChangeID   string
	CriticID   string
	CriticName string
	Provider   CriticProvider
	Verdict    Verdict
	Message    string
	Issues     []CriticIssue
	CreatedAt  time.Time
}

// ArbiterDecisionType enumerates the human decision closing an iteration.
type ArbiterDecisionType string

const (
	DecisionApprove ArbiterDecisionType = "approve"
	DecisionReject  ArbiterDecisionType = "reject"
	DecisionIterate ArbiterDecisionType = "iterate"
	DecisionAbort   ArbiterDecisionType = "abort"
)

// ArbiterDecision is the human decision closing an iteration.
type ArbiterDecision struct {
	ID            string
	IterationID   string
	Decision      ArbiterDecisionType
	Feedback      string
	AddressIssues []string
	FocusFiles    []string
	DecidedAt     time.Time
	DecidedBy     string
	Forced        bool
}

// ToolCallStatus enumerates the lifecycle of a ToolCall record.
type ToolCallStatus string

const (
	ToolCallPending            ToolCallStatus = "pending"
	ToolCallAwaitingPermission ToolCallStatus = "awaiting-permission"
	ToolCallApproved           ToolCallStatus = "approved"
	ToolCallDenied             ToolCallStatus = "denied"
	ToolCallRunning            ToolCallStatus = "running"
	ToolCallSuccess            ToolCallStatus = "success"
	ToolCallError              ToolCallStatus = "error"
)

// ToolCall is an execution record for one tool invocation.
type ToolCall struct {
	ID              string
	ExecutionID     string
	NodeExecutionID *string
	ToolName        string
	Input           string // JSON
	Output          string // JSON, possibly a spill-id marker
	Status          ToolCallStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// ContextItemType enumerates the kind of an addressable piece of execution state.
type ContextItemType string

const (
	ItemSystem      ContextItemType = "system"
	ItemUserInput   ContextItemType = "user-input"
	ItemAgentOutput ContextItemType = "agent-output"
	ItemToolCall    ContextItemType = "tool-call"
	ItemToolResult  ContextItemType = "tool-result"
	ItemCompaction  ContextItemType = "compaction"
)

// ContextRole mirrors the conversational role of a ContextItem.
type ContextRole string

const (
	RoleSystem    ContextRole = "system"
	RoleUser      ContextRole = "user"
	RoleAssistant ContextRole = "assistant"
)

// ContextItem is one addressable piece of conversation/tool state for a
// running workflow execution.
type ContextItem struct {
	ID               string
	ExecutionID      string
	NodeExecutionID  string
	ItemType         ContextItemType
	Role             ContextRole
	Content          string
	AgentID          string
	AgentName        string
	Tokens           int
	CompactedIntoID  *string
	CreatedAt        time.Time
}

// Active reports whether the item has not been compacted away.
func (c *ContextItem) Active() bool { return c.CompactedIntoID == nil }

// PermissionScope enumerates the lifetime of a Permission grant.
type PermissionScope string

const (
	ScopeOnce    PermissionScope = "once"
	ScopeSession PermissionScope = "session"
	ScopeFolder  PermissionScope = "folder"
	ScopeGlobal  PermissionScope = "global"
)

// Permission is a persisted authorization decision.
type Permission struct {
	ID          string
	Scope       PermissionScope
	Workspace   string
	SessionID   string
	ExecutionID string
	WorkflowID  string
	ToolName    string
	MatchPattern string
	Granted     bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the permission's expiration has passed.
func (p *Permission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}
