package statemachine

import "testing"

func TestSubmissionStateMachine(t *testing.T) {
	sm := NewSubmissionStateMachine()

	if !sm.CanTransition(SubmissionPhaseDraft, SubmissionPhaseAwaitingDecision) {
		t.Fatal("expected draft -> awaiting_follow_up_decision to be allowed")
	}
	if !sm.CanTransition(SubmissionPhaseAwaitingDecision, SubmissionPhaseSubmitted) {
		t.Fatal("expected awaiting_follow_up_decision -> submitted to be allowed")
	}
	if !sm.CanTransition(SubmissionPhaseAwaitingDecision, SubmissionPhaseDraft) {
		t.Fatal("expected awaiting_follow_up_decision -> draft (abandon) to be allowed")
	}

	// 跳过决定阶段直接提交是被禁止的
	if sm.CanTransition(SubmissionPhaseDraft, SubmissionPhaseSubmitted) {
		t.Fatal("expected draft -> submitted to be rejected")
	}
	// 已提交的记录不可回退
	if sm.CanTransition(SubmissionPhaseSubmitted, SubmissionPhaseDraft) {
		t.Fatal("expected submitted -> draft to be rejected")
	}
	if sm.CanTransition(SubmissionPhaseSubmitted, SubmissionPhaseAwaitingDecision) {
		t.Fatal("expected submitted -> awaiting_follow_up_decision to be rejected")
	}
}

func TestChecklistStateMachine(t *testing.T) {
	sm := NewChecklistStateMachine()

	if !sm.CanTransition(ExtractionStatusUploading, ExtractionStatusExtracting) {
		t.Fatal("expected uploading -> extracting to be allowed")
	}
	if !sm.CanTransition(ExtractionStatusExtracting, ExtractionStatusCompleted) {
		t.Fatal("expected extracting -> completed to be allowed")
	}
	if !sm.CanTransition(ExtractionStatusExtracting, ExtractionStatusError) {
		t.Fatal("expected extracting -> error to be allowed")
	}
	if !sm.CanTransition(ExtractionStatusError, ExtractionStatusExtracting) {
		t.Fatal("expected error -> extracting (retry) to be allowed")
	}

	if sm.CanTransition(ExtractionStatusUploading, ExtractionStatusCompleted) {
		t.Fatal("expected uploading -> completed to be rejected")
	}
	if sm.CanTransition(ExtractionStatusCompleted, ExtractionStatusExtracting) {
		t.Fatal("expected completed -> extracting to be rejected")
	}
}
