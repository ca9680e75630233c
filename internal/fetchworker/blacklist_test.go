package fetchworker

import "testing"

func TestNewBlacklist_NonPositiveThresholdFallsBackToDefault(t *testing.T) {
	b := NewBlacklist(0)
	for i := 0; i < defaultConsecutiveFailureThreshold; i++ {
		b.RecordFailure("example.com")
	}
	if b.IsBlacklisted("example.com") {
		t.Error("expected host not yet blacklisted at exactly the default threshold")
	}
	b.RecordFailure("example.com")
	if !b.IsBlacklisted("example.com") {
		t.Error("expected host blacklisted one failure past the default threshold")
	}
}

func TestBlacklist_RecordFailure_RespectsConfiguredThreshold(t *testing.T) {
	b := NewBlacklist(2)

	b.RecordFailure("slow.example")
	if b.IsBlacklisted("slow.example") {
		t.Error("expected host not blacklisted below threshold")
	}

	b.RecordFailure("slow.example")
	if b.IsBlacklisted("slow.example") {
		t.Error("expected host not blacklisted at exactly the threshold")
	}

	b.RecordFailure("slow.example")
	if !b.IsBlacklisted("slow.example") {
		t.Error("expected host blacklisted one failure past the threshold")
	}
}

func TestBlacklist_RecordSuccess_ClearsBlacklist(t *testing.T) {
	b := NewBlacklist(1)

	b.RecordFailure("flaky.example")
	b.RecordFailure("flaky.example")
	if !b.IsBlacklisted("flaky.example") {
		t.Fatal("expected host blacklisted before RecordSuccess")
	}

	b.RecordSuccess("flaky.example")
	if b.IsBlacklisted("flaky.example") {
		t.Error("expected RecordSuccess to clear blacklist status")
	}

	b.RecordFailure("flaky.example")
	if b.IsBlacklisted("flaky.example") {
		t.Error("expected failure streak reset after RecordSuccess")
	}
}

func TestBlacklist_IndependentPerHost(t *testing.T) {
	b := NewBlacklist(1)

	b.RecordFailure("a.example")
	b.RecordFailure("a.example")
	if !b.IsBlacklisted("a.example") {
		t.Fatal("expected a.example blacklisted")
	}
	if b.IsBlacklisted("b.example") {
		t.Error("expected b.example unaffected by a.example's failures")
	}
}
