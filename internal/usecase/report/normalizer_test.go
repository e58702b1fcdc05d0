package report

import (
	"testing"
	"time"
)

var normalizeNow = time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)

func TestNormalizeCanonicalShape(t *testing.T) {
	norm, ok := Normalize("Huy", "12/5\n- Did task A", normalizeNow)
	if !ok {
		t.Fatal("ожидали успешную нормализацию")
	}
	want := "**Huy**\n12/05\n- Did task A"
	if got := norm.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
	if !norm.HasDate {
		t.Fatal("ожидали явную дату")
	}
}

func TestNormalizeDropsEchoedOwnName(t *testing.T) {
	norm, ok := Normalize("Huy", "12-5\nFixed bug\nHuy", normalizeNow)
	if !ok {
		t.Fatal("ожидали успешную нормализацию")
	}
	want := "**Huy**\n12/05\n- Fixed bug"
	if got := norm.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestNormalizeDeclaredNameFirstLine(t *testing.T) {
	norm, ok := Normalize("не важно", "huy nguyen\n- did stuff\n7.3", normalizeNow)
	if !ok {
		t.Fatal("ожидали успешную нормализацию")
	}
	if norm.Name != "Huy Nguyen" {
		t.Fatalf("ожидали имя из первой строки в Title Case, получили %q", norm.Name)
	}
	want := "**Huy Nguyen**\n- Did stuff\n07/03"
	if got := norm.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestNormalizePrependsTodayWithoutExplicitDate(t *testing.T) {
	norm, ok := Normalize("Huy", "- task one\n- task two", normalizeNow)
	if !ok {
		t.Fatal("ожидали успешную нормализацию")
	}
	if norm.HasDate {
		t.Fatal("явной даты не было")
	}
	want := "**Huy**\n12/05\n- Task one\n- Task two"
	if got := norm.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestNormalizeBulletGlyphs(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "1.2\n- fix", want: "**Huy**\n01/02\n- Fix"},
		{raw: "1.2\n* fix", want: "**Huy**\n01/02\n- Fix"},
		{raw: "1.2\n+ fix", want: "**Huy**\n01/02\n- Fix"},
		{raw: "1.2\n• fix", want: "**Huy**\n01/02\n- Fix"},
	}
	for _, tt := range tests {
		norm, ok := Normalize("Huy", tt.raw, normalizeNow)
		if !ok {
			t.Fatalf("ожидали успешную нормализацию для %q", tt.raw)
		}
		if got := norm.Render(); got != tt.want {
			t.Fatalf("Render(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeDiscardsEmptyReports(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty input", raw: ""},
		{name: "blank lines only", raw: "\n  \n\t\n"},
		{name: "name echo only", raw: "Huy"},
		{name: "bullets without content", raw: "Huy\n- \n* "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Normalize("Huy", tt.raw, normalizeNow); ok {
				t.Fatalf("ожидали отбраковку отчёта %q", tt.raw)
			}
		})
	}
}
