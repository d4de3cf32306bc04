package simulation

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{ModelPath: "/m.mdl", Duration: 10, StepSize: 0.5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []Config{
		{ModelPath: "/m.mdl", Duration: 0, StepSize: 0.5},
		{ModelPath: "/m.mdl", Duration: -1, StepSize: 0.5},
		{ModelPath: "/m.mdl", Duration: 10, StepSize: 0},
		{ModelPath: "/m.mdl", Duration: 10, StepSize: -0.1},
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected rejection for %+v", c)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Fatal("pending and running are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
}
