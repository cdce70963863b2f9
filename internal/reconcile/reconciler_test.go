package reconcile

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/autoapply/syncbridge/internal/core/domain"
)

func envelope(t *testing.T, typ domain.EventType, payload string) domain.Envelope {
	t.Helper()
	return domain.Envelope{Type: typ, Payload: json.RawMessage(payload)}
}

func TestReconciler_LiveIntervention(t *testing.T) {
	r := New(nil)

	r.Apply(envelope(t, domain.EventIntervention, `{
		"intervention_id": "i1",
		"session_id": "s1",
		"intervention_type": "captcha",
		"title": "CAPTCHA Detected",
		"description": "solve it"
	}`))

	if got := r.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() = %d, want 1", got)
	}
	ivs := r.Interventions()
	if len(ivs) != 1 {
		t.Fatalf("Interventions() len = %d, want 1", len(ivs))
	}
	if ivs[0].ID != "i1" {
		t.Errorf("ID = %q, want i1", ivs[0].ID)
	}
	if ivs[0].Status != domain.InterventionPending {
		t.Errorf("Status = %q, want pending", ivs[0].Status)
	}
	if ivs[0].Type != domain.InterventionCaptcha {
		t.Errorf("Type = %q, want captcha", ivs[0].Type)
	}
}

func TestReconciler_NewestFirstOrdering(t *testing.T) {
	r := New(nil)

	for i := 1; i <= 3; i++ {
		r.Apply(envelope(t, domain.EventIntervention,
			fmt.Sprintf(`{"intervention_id": "i%d", "session_id": "s1", "intervention_type": "other", "title": "t"}`, i)))
	}

	ivs := r.Interventions()
	if len(ivs) != 3 {
		t.Fatalf("Interventions() len = %d, want 3", len(ivs))
	}
	for i, want := range []string{"i3", "i2", "i1"} {
		if ivs[i].ID != want {
			t.Errorf("interventions[%d].ID = %q, want %q", i, ivs[i].ID, want)
		}
	}
}

func TestReconciler_ResolveThenDuplicateResolve(t *testing.T) {
	r := New(nil)
	r.Apply(envelope(t, domain.EventIntervention,
		`{"intervention_id": "i1", "session_id": "s1", "intervention_type": "captcha", "title": "CAPTCHA Detected"}`))

	resolved := envelope(t, domain.EventInterventionResolved,
		`{"intervention_id": "i1", "action": "continue"}`)

	r.Apply(resolved)
	if got := r.PendingCount(); got != 0 {
		t.Fatalf("after first resolve PendingCount() = %d, want 0", got)
	}
	if got := len(r.Interventions()); got != 0 {
		t.Fatalf("after first resolve len = %d, want 0", got)
	}

	// Duplicate resolution must leave state identical.
	r.Apply(resolved)
	if got := r.PendingCount(); got != 0 {
		t.Errorf("after duplicate resolve PendingCount() = %d, want 0", got)
	}
	if got := len(r.Interventions()); got != 0 {
		t.Errorf("after duplicate resolve len = %d, want 0", got)
	}
}

func TestReconciler_DuplicateResolveDoesNotTouchOthers(t *testing.T) {
	r := New(nil)
	for _, id := range []string{"i1", "i2"} {
		r.Apply(envelope(t, domain.EventIntervention,
			fmt.Sprintf(`{"intervention_id": %q, "session_id": "s1", "intervention_type": "other", "title": "t"}`, id)))
	}

	resolved := envelope(t, domain.EventInterventionResolved, `{"intervention_id": "i1", "action": "continue"}`)
	r.Apply(resolved)
	r.Apply(resolved)

	// The second application must not decrement the count for the
	// still-pending i2.
	if got := r.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
	ivs := r.Interventions()
	if len(ivs) != 1 || ivs[0].ID != "i2" {
		t.Errorf("Interventions() = %+v, want exactly i2", ivs)
	}
}

func TestReconciler_SnapshotReplacesWholesale(t *testing.T) {
	r := New(nil)
	for i := 0; i < 5; i++ {
		r.Apply(envelope(t, domain.EventIntervention,
			fmt.Sprintf(`{"intervention_id": "old%d", "session_id": "s", "intervention_type": "other", "title": "t"}`, i)))
	}

	r.Apply(envelope(t, domain.EventInitialState, `{
		"pending_count": 2,
		"interventions": [
			{"id": "a", "session_id": "s1", "intervention_type": "captcha", "status": "pending", "title": "A", "description": ""},
			{"id": "b", "session_id": "s2", "intervention_type": "error", "status": "pending", "title": "B", "description": ""}
		]
	}`))

	if got := r.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
	if got := len(r.Interventions()); got != 2 {
		t.Errorf("Interventions() len = %d, want 2", got)
	}

	// A refresh may also shrink state to zero from a backlog.
	r.Apply(envelope(t, domain.EventRefresh, `{"pending_count": 0, "interventions": []}`))
	if got := r.PendingCount(); got != 0 {
		t.Errorf("after empty refresh PendingCount() = %d, want 0", got)
	}
	if got := len(r.Interventions()); got != 0 {
		t.Errorf("after empty refresh len = %d, want 0", got)
	}
}

func TestReconciler_SnapshotArithmetic(t *testing.T) {
	r := New(nil)
	r.Apply(envelope(t, domain.EventInitialState, `{
		"pending_count": 2,
		"interventions": [
			{"id": "a", "session_id": "s1", "intervention_type": "captcha", "status": "pending", "title": "A"},
			{"id": "b", "session_id": "s2", "intervention_type": "error", "status": "pending", "title": "B"}
		]
	}`))

	r.Apply(envelope(t, domain.EventIntervention, `{"intervention_id": "c", "session_id": "s3", "intervention_type": "other", "title": "C"}`))
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "a", "action": "submit"}`))
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "missing", "action": "continue"}`))

	// 2 from the snapshot + 1 arrival - 1 resolution matching an existing
	// id; the resolution of an unknown id does not count.
	if got := len(r.Interventions()); got != 2 {
		t.Errorf("Interventions() len = %d, want 2", got)
	}
	if got := r.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
}

func TestReconciler_CountNeverNegative(t *testing.T) {
	r := New(nil)

	for i := 0; i < 3; i++ {
		r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "ghost", "action": "cancel"}`))
	}
	if got := r.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}

	r.Replace(0, nil)
	r.MarkResolved("nothing", "cancel")
	if got := r.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestReconciler_Observers(t *testing.T) {
	r := New(nil)

	var arrived []string
	var resolved []string
	unregNew := r.OnIntervention(func(iv domain.Intervention) {
		arrived = append(arrived, iv.ID)
	})
	defer unregNew()
	unregResolved := r.OnResolved(func(id, action string) {
		resolved = append(resolved, id+":"+action)
	})

	r.Apply(envelope(t, domain.EventIntervention, `{"intervention_id": "i1", "session_id": "s1", "intervention_type": "captcha", "title": "T"}`))
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "i1", "action": "continue"}`))
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "i1", "action": "continue"}`))

	if len(arrived) != 1 || arrived[0] != "i1" {
		t.Errorf("intervention observer calls = %v, want [i1]", arrived)
	}
	if len(resolved) != 1 || resolved[0] != "i1:continue" {
		t.Errorf("resolved observer calls = %v, want [i1:continue]", resolved)
	}

	// After unregistering, no further notifications.
	unregResolved()
	r.Apply(envelope(t, domain.EventIntervention, `{"intervention_id": "i2", "session_id": "s1", "intervention_type": "other", "title": "T"}`))
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "i2", "action": "cancel"}`))
	if len(resolved) != 1 {
		t.Errorf("resolved observer called after unregister: %v", resolved)
	}
}

func TestReconciler_IgnoresNoise(t *testing.T) {
	r := New(nil)
	r.Apply(envelope(t, domain.EventIntervention, `{"intervention_id": "i1", "session_id": "s1", "intervention_type": "other", "title": "T"}`))

	r.Apply(envelope(t, domain.EventPong, `{}`))
	r.Apply(envelope(t, "mystery_event", `{"anything": true}`))
	r.Apply(envelope(t, domain.EventIntervention, `not json at all`))
	r.Apply(envelope(t, domain.EventInitialState, `[1,2,3]`))

	if got := r.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
	if got := len(r.Interventions()); got != 1 {
		t.Errorf("Interventions() len = %d, want 1", got)
	}
}

func TestReconciler_ResolveCommandAndEventConverge(t *testing.T) {
	r := New(nil)
	r.Apply(envelope(t, domain.EventIntervention, `{"intervention_id": "i1", "session_id": "s1", "intervention_type": "captcha", "title": "T"}`))

	// The command's HTTP response lands first, then the channel event.
	r.MarkResolved("i1", "continue")
	r.Apply(envelope(t, domain.EventInterventionResolved, `{"intervention_id": "i1", "action": "continue"}`))

	if got := r.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
	if got := len(r.Interventions()); got != 0 {
		t.Errorf("Interventions() len = %d, want 0", got)
	}
}
