package lifecycle

import "testing"

func TestCanTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateInitializing, true},
		{StateInitializing, StateReady, true},
		{StateInitializing, StateShuttingDown, true},
		{StateInitializing, StateClosed, true},
		{StateReady, StateShuttingDown, true},
		{StateReady, StateClosed, true},
		{StateShuttingDown, StateClosed, true},
		{StateUninitialized, StateReady, false},
		{StateReady, StateInitializing, false},
		{StateClosed, StateInitializing, false},
		{StateShuttingDown, StateReady, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminalState(t *testing.T) {
	if !IsTerminalState(StateClosed) {
		t.Error("expected StateClosed to be terminal")
	}
	if IsTerminalState(StateReady) {
		t.Error("expected StateReady not to be terminal")
	}
}

func TestValidateTransitionReturnsTransitionError(t *testing.T) {
	err := ValidateTransition("sess-1", StateClosed, StateReady)
	if err == nil {
		t.Fatal("expected an error for an illegal transition")
	}
	te, ok := err.(*TransitionError)
	if !ok {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if te.SessionID != "sess-1" || te.From != StateClosed || te.To != StateReady {
		t.Errorf("unexpected TransitionError fields: %+v", te)
	}
	if te.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestValidateTransitionAllowsLegalEdge(t *testing.T) {
	if err := ValidateTransition("sess-1", StateInitializing, StateReady); err != nil {
		t.Errorf("unexpected error for a legal transition: %v", err)
	}
}
