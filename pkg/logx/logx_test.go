package logx

import (
	"testing"
)

func TestDebugDomainFiltering(t *testing.T) {
	defer SetDebug(false, nil)

	SetDebug(true, []string{"scheduler", "session"})

	if !IsDebugEnabled("scheduler") {
		t.Error("scheduler domain should be enabled")
	}
	if !IsDebugEnabled("session") {
		t.Error("session domain should be enabled")
	}
	if IsDebugEnabled("pipeline") {
		t.Error("pipeline domain should be disabled")
	}
}

func TestDebugAllDomains(t *testing.T) {
	defer SetDebug(false, nil)

	SetDebug(true, nil)
	if !IsDebugEnabled("anything") {
		t.Error("all domains should be enabled when no filter is set")
	}

	SetDebug(false, nil)
	if IsDebugEnabled("anything") {
		t.Error("debug disabled should disable all domains")
	}
}

func TestWithComponent(t *testing.T) {
	base := NewLogger("pipeline")
	child := base.WithComponent("scheduler")

	if base.Component() != "pipeline" {
		t.Errorf("base component changed: %s", base.Component())
	}
	if child.Component() != "scheduler" {
		t.Errorf("child component wrong: %s", child.Component())
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) should return nil, got %v", err)
	}
}
