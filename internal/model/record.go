package model

import "time"

// GroupTag names the policy group a record belongs to. Variant records carry
// a parent catalog reference or are referenced as a parent by another record;
// everything else is Standard.
type GroupTag string

const (
	GroupVariant  GroupTag = "variant"
	GroupStandard GroupTag = "standard"
)

// PromptProfile names which system prompt a batch is enhanced with.
type PromptProfile string

const (
	ProfileVariant  PromptProfile = "variant"
	ProfileStandard PromptProfile = "standard"
)

// ProfileFor maps a policy group to its prompt profile.
func ProfileFor(tag GroupTag) PromptProfile {
	if tag == GroupVariant {
		return ProfileVariant
	}
	return ProfileStandard
}

// Item is a read-only snapshot of one record as sent to the enhancement
// service. Content holds the mutable free-text fields keyed by column name.
type Item struct {
	Identifier string
	Name       string
	Content    map[string]string
}

// EnhancementResult is one enhanced item returned by the service. It is read
// once by the reconciler and then discarded.
type EnhancementResult struct {
	Identifier string
	Name       string
	Content    map[string]string
}

// Batch is an ephemeral unit of work: the item snapshots sent to the service
// in one call plus the exact dataset positions they came from. Scope is
// carried forward from the builder, never re-derived from content.
type Batch struct {
	Seq     int
	Items   []Item
	Scope   []int
	Profile PromptProfile
}

// BatchOutcome describes how a batch finished.
type BatchOutcome string

const (
	OutcomeReconciled BatchOutcome = "reconciled"
	OutcomeAbandoned  BatchOutcome = "abandoned"
)

// RunProgress is emitted after every batch completes, success or abandonment.
type RunProgress struct {
	RunID            string
	ProcessedSoFar   int
	TotalEligible    int
	LastBatchSeq     int
	LastBatchOutcome BatchOutcome
}

// RunSummary is the final outcome of an enhancement run. FailedIdentifiers is
// reporting only; failed records stay unprocessed and are picked up by a
// future run.
type RunSummary struct {
	RunID             string
	TotalEligible     int
	Processed         int
	Failed            int
	FailedIdentifiers []string
	Batches           int
	TokensUsed        int
	Elapsed           time.Duration
}
