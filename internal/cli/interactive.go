package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/dubcast/internal/job"
)

// fieldKind selects how a menuItem is edited.
type fieldKind int

const (
	fieldText fieldKind = iota
	fieldBool
	fieldSelect
)

// menuItem represents one field of the fixed dub prompt sequence
// (spec.md §6: URL -> test mode -> breath detection -> post-edit on/off
// -> post-edit model -> translation on/off -> target language -> context
// -> audience -> tone -> TTS provider -> voice id -> mux on/off).
type menuItem struct {
	label    string
	kind     fieldKind
	value    string
	options  []menuOption
	cursor   int // cursor within options when editing
	editing  bool
	required bool
	// showIf reports whether this field is relevant given the current
	// values of the items before it (e.g. post-edit model only shown
	// when post-edit is enabled).
	showIf func(items []menuItem) bool
}

type menuOption struct {
	label string
	value string
}

type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

// tuiModel is the Bubble Tea model driving the fixed-order dub prompt
// sequence, generalized from the teacher's podcast-options wizard: the
// same menuItem/cursor/editing shape, data-driven by a per-item kind
// instead of hand-enumerated field indices.
type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	err       error
	confirmed bool
	cancelled bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(20).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)
)

const (
	idxURL             = 0
	idxTestMode        = 1
	idxBreathDetection = 2
	idxPostEdit        = 3
	idxPostEditModel   = 4
	idxTranslate       = 5
	idxTargetLang      = 6
	idxContext         = 7
	idxAudience        = 8
	idxTone            = 9
	idxTTSProvider     = 10
	idxVoiceID         = 11
	idxMux             = 12
)

func boolOptions() []menuOption {
	return []menuOption{
		{label: "Off", value: ""},
		{label: "On", value: "on"},
	}
}

func buildMenuItems() []menuItem {
	return []menuItem{
		{label: "URL", kind: fieldText, required: true},
		{label: "Test mode", kind: fieldBool, options: boolOptions()},
		{label: "Breath detection", kind: fieldBool, options: boolOptions()},
		{label: "Post-edit", kind: fieldBool, options: boolOptions()},
		{
			label: "Post-edit model", kind: fieldSelect,
			options: []menuOption{
				{label: "Auto (fallback policy) (default)", value: "auto"},
				{label: "Claude", value: "sonnet"},
				{label: "Nova", value: "nova-lite"},
				{label: "Gemini", value: "gemini-flash"},
			},
			showIf: func(items []menuItem) bool { return items[idxPostEdit].value == "on" },
		},
		{label: "Translation", kind: fieldBool, options: boolOptions()},
		{
			label: "Target language", kind: fieldText,
			showIf: func(items []menuItem) bool { return items[idxTranslate].value == "on" },
		},
		{
			label: "Context", kind: fieldSelect,
			options: []menuOption{
				{label: "None (default)", value: ""},
				{label: "Legal", value: "legal"},
				{label: "Spiritual", value: "spiritual"},
				{label: "Marketing", value: "marketing"},
				{label: "Scientific", value: "scientific"},
				{label: "Educational", value: "educational"},
				{label: "News", value: "news"},
				{label: "Casual", value: "casual"},
			},
			showIf: func(items []menuItem) bool { return items[idxTranslate].value == "on" },
		},
		{
			label: "Audience", kind: fieldText,
			showIf: func(items []menuItem) bool { return items[idxTranslate].value == "on" },
		},
		{
			label: "Tone", kind: fieldText,
			showIf: func(items []menuItem) bool { return items[idxTranslate].value == "on" },
		},
		{
			label: "TTS provider", kind: fieldSelect,
			options: []menuOption{
				{label: "Auto (cheapest/best match) (default)", value: "auto"},
				{label: "ElevenLabs", value: "elevenlabs"},
				{label: "Google Cloud TTS", value: "google"},
				{label: "Gemini", value: "gemini"},
				{label: "AWS Polly", value: "polly"},
			},
		},
		{
			label: "Voice ID", kind: fieldText,
			showIf: func(items []menuItem) bool {
				p := items[idxTTSProvider].value
				return p != "" && p != "auto"
			},
		},
		{label: "Mux into video", kind: fieldBool, options: boolOptions()},
	}
}

func initialTUIModel() tuiModel {
	return tuiModel{items: buildMenuItems(), state: stateMenu}
}

func (m tuiModel) Init() tea.Cmd { return nil }

// visible returns the indices of items relevant given current values,
// in display order.
func (m tuiModel) visible() []int {
	var out []int
	for i, item := range m.items {
		if item.showIf != nil && !item.showIf(m.items) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (m tuiModel) generateIdx() int { return len(m.items) }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.state {
	case stateEditing:
		return m.updateEditing(keyMsg)
	default:
		return m.updateMenu(keyMsg)
	}
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	vis := m.visible()

	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		pos := indexOf(vis, m.cursor)
		if pos > 0 {
			m.cursor = vis[pos-1]
		}

	case "down", "j":
		pos := indexOf(vis, m.cursor)
		if pos >= 0 && pos < len(vis)-1 {
			m.cursor = vis[pos+1]
		} else if pos == -1 && len(vis) > 0 {
			m.cursor = vis[0]
		}

	case "enter", " ":
		if m.cursor == m.generateIdx() {
			if m.items[idxURL].value == "" {
				m.err = fmt.Errorf("URL is required")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
		item := &m.items[m.cursor]
		if item.kind == fieldText {
			m.state = stateEditing
			item.editing = true
			m.err = nil
			return m, nil
		}
		if len(item.options) > 0 {
			m.state = stateEditing
			item.editing = true
			m.err = nil
		}
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := &m.items[m.cursor]

	if item.kind == fieldText {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			m.advanceCursor()
			return m, nil
		case "esc":
			item.editing = false
			m.state = stateMenu
			return m, nil
		case "backspace":
			if len(item.value) > 0 {
				item.value = item.value[:len(item.value)-1]
			}
		case "ctrl+u":
			item.value = ""
		default:
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false
		m.state = stateMenu
		m.advanceCursor()
	case "esc":
		item.editing = false
		m.state = stateMenu
	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}
	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m *tuiModel) advanceCursor() {
	vis := m.visible()
	pos := indexOf(vis, m.cursor)
	if pos >= 0 && pos < len(vis)-1 {
		m.cursor = vis[pos+1]
	} else {
		m.cursor = m.generateIdx()
	}
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render("dubcast")))
	b.WriteString("\n")

	for _, i := range m.visible() {
		item := m.items[i]
		isActive := m.cursor == i

		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}

		label := item.label
		if item.required {
			label += requiredStyle.Render("*")
		}
		renderedLabel := menuLabelStyle.Render(label)

		var renderedValue string
		switch {
		case item.editing && item.kind == fieldText:
			renderedValue = menuValueStyle.Render(item.value + "_")
		case item.value == "":
			renderedValue = menuValueDimStyle.Render("(not set)")
		default:
			renderedValue = menuValueStyle.Render(displayValue(item))
		}

		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, renderedLabel, renderedValue))

		if item.editing && len(item.options) > 0 {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString("    " + selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString("    " + optionStyle.Render(opt.label) + "\n")
				}
			}
		}
	}

	b.WriteString("\n")
	if m.cursor == m.generateIdx() {
		b.WriteString("  " + buttonStyle.Render(" Submit "))
	} else {
		b.WriteString("  " + buttonDimStyle.Render(" Submit "))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("  ↑/↓ navigate · enter select/edit · esc cancel edit · q quit"))
	return b.String()
}

func displayValue(item menuItem) string {
	if item.kind == fieldBool {
		if item.value == "on" {
			return "On"
		}
		return "Off"
	}
	for _, opt := range item.options {
		if opt.value == item.value {
			return opt.label
		}
	}
	return item.value
}

// runInteractiveSetup runs the fixed-order prompt sequence of spec.md §6
// and returns the resulting job.Request.
func runInteractiveSetup() (job.Request, error) {
	m := initialTUIModel()

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return job.Request{}, fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled || !final.confirmed {
		return job.Request{}, fmt.Errorf("cancelled")
	}

	req := job.Request{
		Kind:            job.KindDub,
		URL:             final.items[idxURL].value,
		TestMode:        final.items[idxTestMode].value == "on",
		BreathDetection: final.items[idxBreathDetection].value == "on",
		PostEditEnabled: final.items[idxPostEdit].value == "on",
		PostEditModel:   final.items[idxPostEditModel].value,
		TTSProvider:     final.items[idxTTSProvider].value,
		VoiceID:         final.items[idxVoiceID].value,
		MuxEnabled:      final.items[idxMux].value == "on",
	}
	if final.items[idxTranslate].value == "on" {
		req.TranslateEnabled = true
		req.TargetLanguage = final.items[idxTargetLang].value
		req.Context = final.items[idxContext].value
		req.Audience = final.items[idxAudience].value
		req.Tone = final.items[idxTone].value
	}
	if req.TTSProvider == "" {
		req.TTSProvider = "auto"
	}
	return req, nil
}
