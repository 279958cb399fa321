package worker

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateDispatching, "Dispatching"},
		{StateClosed, "Closed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"idle to dispatching", StateIdle, StateDispatching, false},
		{"idle to closed", StateIdle, StateClosed, false},
		{"dispatching to idle", StateDispatching, StateIdle, false},
		{"dispatching to closed", StateDispatching, StateClosed, false},
		{"idle to idle", StateIdle, StateIdle, true},
		{"dispatching to dispatching", StateDispatching, StateDispatching, true},
		{"closed to idle", StateClosed, StateIdle, true},
		{"closed to dispatching", StateClosed, StateDispatching, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &stateMachine{state: tt.from}
			err := m.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && m.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", m.State(), tt.to)
			}
			if err != nil && m.State() != tt.from {
				t.Errorf("state = %v after rejected transition, want %v", m.State(), tt.from)
			}
		})
	}
}
