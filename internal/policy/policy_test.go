package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/session"
)

func compileDefault(t *testing.T) *Policy {
	t.Helper()
	p, err := Compile(actions.NewCatalog(""), "")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return p
}

func equalIDs(a, b []actions.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVisibleTable(t *testing.T) {
	p := compileDefault(t)

	tests := []struct {
		status session.Status
		want   []actions.ID
	}{
		{session.CheckedOut, []actions.ID{actions.CheckIn, actions.Report}},
		{session.CheckedIn, []actions.ID{actions.AddToAgenda, actions.PostAgenda, actions.Report}},
		{session.AgendaPosted, []actions.ID{actions.ClockEffort, actions.AddBreak, actions.CheckOut, actions.Report}},
		{session.Unknown, []actions.ID{actions.Report}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := p.Visible(tt.status); !equalIDs(got, tt.want) {
				t.Errorf("Visible(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestUnrecognizedStatusFallsBack(t *testing.T) {
	p := compileDefault(t)
	for _, raw := range []string{"", "lunch", "CHECKED_IN", "agenda posted"} {
		status := session.Normalize(raw)
		first := p.Visible(status)
		second := p.Visible(status)
		if !equalIDs(first, []actions.ID{actions.Report}) {
			t.Errorf("%q: expected report only, got %v", raw, first)
		}
		if !equalIDs(first, second) {
			t.Errorf("%q: expected idempotent result", raw)
		}
	}

	if got := p.Visible(session.Status("made_up")); !equalIDs(got, []actions.ID{actions.Report}) {
		t.Errorf("expected fallback for raw status outside the enumeration, got %v", got)
	}
}

func TestIsVisible(t *testing.T) {
	p := compileDefault(t)
	if !p.IsVisible(session.CheckedOut, actions.CheckIn) {
		t.Error("check-in should be visible when checked out")
	}
	if p.IsVisible(session.CheckedOut, actions.CheckOut) {
		t.Error("check-out should be hidden when checked out")
	}
}

func TestExtraRules(t *testing.T) {
	extra := `visible("checked_out", "add-break").`
	p, err := Compile(actions.NewCatalog(""), extra)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := []actions.ID{actions.CheckIn, actions.AddBreak, actions.Report}
	if got := p.Visible(session.CheckedOut); !equalIDs(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCompileRejectsUnknownAction(t *testing.T) {
	_, err := Compile(actions.NewCatalog(""), `visible("checked_in", "teleport").`)
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("expected unknown action error, got %v", err)
	}
}

func TestCompileRejectsUnknownStatus(t *testing.T) {
	_, err := Compile(actions.NewCatalog(""), `visible("on_break", "report").`)
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("expected unknown status error, got %v", err)
	}
}

func TestCompileRejectsSyntaxErrors(t *testing.T) {
	if _, err := Compile(actions.NewCatalog(""), `visible(`); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRulesFile(t *testing.T) {
	if rules, err := LoadRulesFile(""); err != nil || rules != "" {
		t.Errorf("expected empty rules for empty path, got %q (%v)", rules, err)
	}

	path := filepath.Join(t.TempDir(), "extra.mg")
	if err := os.WriteFile(path, []byte(`visible("checked_in", "check-out").`), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRulesFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rules, "check-out") {
		t.Errorf("unexpected rules %q", rules)
	}

	if _, err := LoadRulesFile(filepath.Join(t.TempDir(), "missing.mg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCatalogFacts(t *testing.T) {
	facts := catalogFacts(actions.NewCatalog(""))
	for _, want := range []string{
		`status("checked_out").`,
		`shown_in("check-in", "checked_out").`,
		`shown_in("report", "agenda_posted").`,
	} {
		if !strings.Contains(facts, want) {
			t.Errorf("expected facts to contain %s", want)
		}
	}
}
