package uistream

import "testing"

func TestJobListCoalescing(t *testing.T) {
	var l jobList
	l = l.untextured(6)
	l = l.untextured(5)
	if len(l) != 1 || l[0].Vertices != 11 {
		t.Fatalf("jobs = %v, want one job of 11", l)
	}
	l = append(l, Job{Kind: JobTextured, Vertices: 6})
	l = l.untextured(6)
	if len(l) != 3 {
		t.Fatalf("jobs = %v, want 3 jobs", l)
	}
	if n := l.vertices(); n != 23 {
		t.Errorf("vertices() = %d, want 23", n)
	}
}

func TestJobKindString(t *testing.T) {
	tests := []struct {
		k    JobKind
		want string
	}{
		{JobUntextured, "untextured"},
		{JobTextured, "textured"},
		{JobKind(7), "JobKind(7)"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
