package cli

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apresai/dubcast/internal/config"
)

func TestCheckFFmpegReportsMissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if err := checkFFmpeg(); err == nil {
		t.Fatal("expected an error when ffmpeg is not on PATH")
	}
}

func TestBuildOrchestratorSkipsProvidersWithoutCredentials(t *testing.T) {
	for _, key := range []string{"ELEVENLABS_API_KEY", "GEMINI_API_KEY", "GCP_PROJECT"} {
		t.Setenv(key, "")
	}
	cfg := config.Config{TempDir: t.TempDir()}

	o, _, catalog, names, err := buildOrchestrator(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildOrchestrator: %v", err)
	}
	if o == nil {
		t.Fatal("expected a non-nil orchestrator")
	}
	if catalog == nil {
		t.Fatal("expected a non-nil catalog")
	}
	for _, n := range names {
		if n == "elevenlabs" || n == "gemini-vertex" {
			t.Errorf("expected %q to be excluded without credentials, got names=%v", n, names)
		}
	}
}

func TestIndexOf(t *testing.T) {
	xs := []int{2, 4, 6}
	if got := indexOf(xs, 4); got != 1 {
		t.Errorf("indexOf(%v, 4) = %d, want 1", xs, got)
	}
	if got := indexOf(xs, 99); got != -1 {
		t.Errorf("indexOf(%v, 99) = %d, want -1", xs, got)
	}
}

func TestBuildMenuItemsOrderMatchesIdxConstants(t *testing.T) {
	items := buildMenuItems()
	wantLabels := []string{
		idxURL:             "URL",
		idxTestMode:        "Test mode",
		idxBreathDetection: "Breath detection",
		idxPostEdit:        "Post-edit",
		idxPostEditModel:   "Post-edit model",
		idxTranslate:       "Translation",
		idxTargetLang:      "Target language",
		idxContext:         "Context",
		idxAudience:        "Audience",
		idxTone:            "Tone",
		idxTTSProvider:     "TTS provider",
		idxVoiceID:         "Voice ID",
		idxMux:             "Mux into video",
	}
	if len(items) != len(wantLabels) {
		t.Fatalf("expected %d menu items, got %d", len(wantLabels), len(items))
	}
	for idx, want := range wantLabels {
		if items[idx].label != want {
			t.Errorf("item %d: expected label %q, got %q", idx, want, items[idx].label)
		}
	}
}

func TestVisibleHidesConditionalFieldsByDefault(t *testing.T) {
	m := initialTUIModel()
	vis := m.visible()

	hidden := map[int]bool{
		idxPostEditModel: true,
		idxTargetLang:    true,
		idxContext:       true,
		idxAudience:      true,
		idxTone:          true,
		idxVoiceID:       true,
	}
	for _, i := range vis {
		if hidden[i] {
			t.Errorf("expected item %d to be hidden when its showIf condition is unmet", i)
		}
	}
}

func TestVisibleRevealsTargetLanguageOncePostEditAndTranslateAreOn(t *testing.T) {
	m := initialTUIModel()
	m.items[idxPostEdit].value = "on"
	m.items[idxTranslate].value = "on"

	vis := m.visible()
	found := map[int]bool{}
	for _, i := range vis {
		found[i] = true
	}
	for _, want := range []int{idxPostEditModel, idxTargetLang, idxContext, idxAudience, idxTone} {
		if !found[want] {
			t.Errorf("expected item %d to become visible once its dependency is on", want)
		}
	}
}

func TestDisplayValueForBoolField(t *testing.T) {
	item := menuItem{kind: fieldBool, value: "on"}
	if got := displayValue(item); got != "On" {
		t.Errorf("displayValue(on) = %q, want On", got)
	}
	item.value = ""
	if got := displayValue(item); got != "Off" {
		t.Errorf("displayValue(off) = %q, want Off", got)
	}
}

func TestDisplayValueForSelectField(t *testing.T) {
	item := menuItem{
		kind: fieldSelect,
		options: []menuOption{
			{label: "Auto (default)", value: "auto"},
			{label: "ElevenLabs", value: "elevenlabs"},
		},
		value: "elevenlabs",
	}
	if got := displayValue(item); got != "ElevenLabs" {
		t.Errorf("displayValue = %q, want ElevenLabs", got)
	}
}

func TestUpdateMenuNavigatesBetweenVisibleItems(t *testing.T) {
	m := initialTUIModel()
	if m.cursor != idxURL {
		t.Fatalf("expected initial cursor at idxURL, got %d", m.cursor)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	nm := next.(tuiModel)
	if nm.cursor != idxTestMode {
		t.Errorf("expected cursor to move to idxTestMode, got %d", nm.cursor)
	}

	back, _ := nm.Update(tea.KeyMsg{Type: tea.KeyUp})
	bm := back.(tuiModel)
	if bm.cursor != idxURL {
		t.Errorf("expected cursor to move back to idxURL, got %d", bm.cursor)
	}
}

func TestUpdateMenuTypingIntoTextField(t *testing.T) {
	m := initialTUIModel()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	em := next.(tuiModel)
	if em.state != stateEditing {
		t.Fatalf("expected enter on a text field to start editing")
	}

	next, _ = em.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("https://example.com/video")})
	em = next.(tuiModel)
	if em.items[idxURL].value != "https://example.com/video" {
		t.Errorf("expected typed runes to accumulate, got %q", em.items[idxURL].value)
	}

	next, _ = em.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	em = next.(tuiModel)
	if em.items[idxURL].value != "https://example.com/video"[:len("https://example.com/video")-1] {
		t.Errorf("expected backspace to drop the last rune, got %q", em.items[idxURL].value)
	}

	next, _ = em.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
	em = next.(tuiModel)
	if em.items[idxURL].value != "" {
		t.Errorf("expected ctrl+u to clear the field, got %q", em.items[idxURL].value)
	}

	final, _ := em.Update(tea.KeyMsg{Type: tea.KeyEnter})
	fm := final.(tuiModel)
	if fm.state != stateMenu {
		t.Errorf("expected enter to commit the field and return to the menu")
	}
	if fm.cursor != idxTestMode {
		t.Errorf("expected cursor to advance past the URL field, got %d", fm.cursor)
	}
}

func TestUpdateMenuSelectingABoolOption(t *testing.T) {
	m := initialTUIModel()
	m.cursor = idxTestMode

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	em := next.(tuiModel)
	if !em.items[idxTestMode].editing {
		t.Fatal("expected entering a select field to start editing")
	}

	next, _ = em.Update(tea.KeyMsg{Type: tea.KeyDown})
	em = next.(tuiModel)
	if em.items[idxTestMode].cursor != 1 {
		t.Fatalf("expected option cursor to move to 1, got %d", em.items[idxTestMode].cursor)
	}

	final, _ := em.Update(tea.KeyMsg{Type: tea.KeyEnter})
	fm := final.(tuiModel)
	if fm.items[idxTestMode].value != "on" {
		t.Errorf("expected selecting the second bool option to set value=on, got %q", fm.items[idxTestMode].value)
	}
}

func TestUpdateMenuRequiresURLBeforeSubmit(t *testing.T) {
	m := initialTUIModel()
	m.cursor = m.generateIdx()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	nm := next.(tuiModel)
	if nm.confirmed {
		t.Fatal("expected submit to be rejected without a URL")
	}
	if nm.err == nil {
		t.Error("expected an error set on the model when URL is missing")
	}
}

func TestUpdateMenuQuitSetsCancelled(t *testing.T) {
	m := initialTUIModel()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	nm := next.(tuiModel)
	if !nm.cancelled {
		t.Error("expected ctrl+c to set cancelled")
	}
	if cmd == nil {
		t.Error("expected a tea.Quit command")
	}
}
