package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	fail    bool
	events  *[]string
	started bool
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.fail {
		return errors.New("boom")
	}
	s.started = true
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	s.started = false
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	a := &recordingService{name: "a", events: &events}
	b := &recordingService{name: "b", events: &events}

	if err := m.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := m.Register(b); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events %v, want %v", events, want)
		}
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	a := &recordingService{name: "a", events: &events}
	bad := &recordingService{name: "bad", fail: true, events: &events}

	m.Register(a)
	m.Register(bad)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}
	if a.started {
		t.Fatal("earlier service must be rolled back")
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "a", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "a", events: &events}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if err := m.Register(nil); err == nil {
		t.Fatal("expected nil service error")
	}
}
