package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/phonectl/phonectl/internal/action"
)

func TestNew(t *testing.T) {
	a, b := New("t", "dev", 5), New("t", "dev", 5)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.Status != StatusRunning {
		t.Errorf("Status = %q, want running", a.Status)
	}
	if a.StepCount() != 0 || a.Finished() {
		t.Error("new session must be empty and not finished")
	}
}

func TestAppendAssignsIndices(t *testing.T) {
	s := New("t", "", 5)
	for i := 0; i < 3; i++ {
		step := s.Append(Step{Action: action.Do(action.NameBack, nil), Status: StepApplied, Index: 99})
		if step.Index != i {
			t.Errorf("step %d got index %d", i, step.Index)
		}
		if step.At.IsZero() {
			t.Error("At should be set")
		}
	}
	last, ok := s.LastStep()
	if !ok || last.Index != 2 {
		t.Errorf("LastStep = %+v, %v", last, ok)
	}
}

func TestBudget(t *testing.T) {
	s := New("t", "", 2)
	if s.Remaining() != 2 || s.BudgetSpent() {
		t.Fatalf("fresh budget: remaining %d spent %v", s.Remaining(), s.BudgetSpent())
	}
	s.Append(Step{Status: StepApplied})
	s.Append(Step{Status: StepApplied})
	if s.Remaining() != 0 || !s.BudgetSpent() {
		t.Errorf("spent budget: remaining %d spent %v", s.Remaining(), s.BudgetSpent())
	}
}

func TestCloseKeepsFirstOutcome(t *testing.T) {
	s := New("t", "", 2)
	s.Close(StatusCancelled, "user declined")
	s.Close(StatusFinished, "done")
	if s.Status != StatusCancelled || s.Message != "user declined" {
		t.Errorf("got %q %q", s.Status, s.Message)
	}
	if s.Finished() {
		t.Error("cancelled session must not be finished")
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusRunning:         false,
		"":                    false,
		StatusFinished:        true,
		StatusFailed:          true,
		StatusCancelled:       true,
		StatusBudgetExhausted: true,
	}
	for st, want := range tests {
		if got := st.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", st, got, want)
		}
	}
}

func TestExportImport(t *testing.T) {
	s := New("搜索<火锅>", "", 3)
	s.Append(Step{Action: action.Do(action.NameTap, map[string]string{"element": "[1,2]"}), Status: StepApplied})
	s.Close(StatusFinished, "ok")

	var buf bytes.Buffer
	if err := Export(&buf, s); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), "搜索<火锅>") {
		t.Errorf("HTML should not be escaped: %s", buf.String())
	}

	back, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if back.ID != s.ID || back.StepCount() != 1 || back.Status != StatusFinished {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestImport_RejectsImpossibleTranscripts(t *testing.T) {
	over := New("t", "", 1)
	over.Append(Step{Status: StepApplied})
	over.Append(Step{Status: StepApplied})

	tests := []struct {
		name   string
		mutate func(*Session)
	}{
		{"missing id", func(s *Session) { s.ID = "" }},
		{"empty status", func(s *Session) { s.Status = "" }},
		{"unknown status", func(s *Session) { s.Status = "paused" }},
		{"zero budget", func(s *Session) { s.MaxSteps = 0 }},
		{"negative budget", func(s *Session) { s.MaxSteps = -1 }},
		{"over budget", func(s *Session) { s.Steps = over.Steps }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("t", "", 1)
			tt.mutate(s)
			var buf bytes.Buffer
			if err := Export(&buf, s); err != nil {
				t.Fatalf("Export: %v", err)
			}
			_, err := Import(&buf)
			if !errors.Is(err, ErrInvalidTranscript) {
				t.Errorf("Import error = %v, want ErrInvalidTranscript", err)
			}
		})
	}
}

func TestExportFile(t *testing.T) {
	s := New("t", "", 1)
	path, err := ExportFile(t.TempDir(), s)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if !strings.HasSuffix(path, s.ID+".json") {
		t.Errorf("unexpected path %q", path)
	}
}
