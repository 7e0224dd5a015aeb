package main

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/VidyaBipin/pythonnet-Csharp-python/finalizer"
	"github.com/VidyaBipin/pythonnet-Csharp-python/simulator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// errorTap records the most recent finalization errors for display.
type errorTap struct {
	mu     sync.Mutex
	recent []string
}

func (t *errorTap) OnFinalizeError(e *finalizer.ErrorEvent) {
	e.Handled = true
	t.mu.Lock()
	t.recent = append(t.recent, e.Err.Error())
	if len(t.recent) > 5 {
		t.recent = t.recent[len(t.recent)-5:]
	}
	t.mu.Unlock()
}

func (t *errorTap) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.recent))
	copy(out, t.recent)
	return out
}

type monitorModel struct {
	in   *simulator.Interpreter
	fin  *finalizer.Finalizer
	errs *errorTap

	auto      bool
	threshold uint32
	paused    *atomic.Bool
	lastErr   string

	input   textinput.Model
	editing bool
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *monitorModel) Init() tea.Cmd {
	return tick()
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter":
				if v, err := strconv.ParseUint(m.input.Value(), 10, 32); err == nil && v > 0 {
					m.threshold = uint32(v)
					m.fin.Configure(m.threshold, m.auto)
				}
				m.editing = false
				m.input.Blur()
			case "esc":
				m.editing = false
				m.input.Blur()
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "t":
			m.editing = true
			m.input.SetValue("")
			m.input.Focus()
			return m, textinput.Blink
		case "c":
			if err := m.fin.Collect(); err != nil {
				m.lastErr = err.Error()
			}
		case "a":
			m.auto = !m.auto
			m.fin.Configure(m.threshold, m.auto)
		case "p":
			m.paused.Store(!m.paused.Load())
		case "r":
			m.in.Finalize()
			_ = m.fin.OnInterpreterShutdown()
			m.in.Initialize()
			m.fin.OnInterpreterInit()
		case "f":
			m.fin.Enqueue(m.in.NewFailingObject(1), m.fin.Epoch())
		}
	}
	return m, nil
}

func (m *monitorModel) View() string {
	s := m.fin.Stats()

	out := titleStyle.Render("finalizer monitor") + "\n\n"

	row := func(label string, format string, args ...any) string {
		return labelStyle.Render(fmt.Sprintf("  %-10s", label)) +
			valueStyle.Render(fmt.Sprintf(format, args...)) + "\n"
	}

	out += row("epoch", "%d", m.fin.Epoch())
	out += row("depth", "%d", m.fin.Depth())
	out += row("enqueued", "%d", s.Enqueued)
	out += row("released", "%d", s.Released)
	out += row("stale", "%d", s.Stale)
	out += row("failed", "%d", s.Failed)
	out += row("dropped", "%d", s.Dropped)
	out += row("drains", "%d", s.Drains)
	out += row("live objs", "%d", m.in.Objects())
	out += row("threshold", "%d", m.threshold)
	out += row("auto", "%v", m.auto)
	out += row("paused", "%v", m.paused.Load())

	if m.editing {
		out += "\n" + labelStyle.Render("  new threshold: ") + m.input.View() + "\n"
	}

	if recent := m.errs.snapshot(); len(recent) > 0 {
		out += "\n" + labelStyle.Render("  recent errors") + "\n"
		for _, e := range recent {
			out += errorStyle.Render("    "+e) + "\n"
		}
	}
	if m.lastErr != "" {
		out += "\n" + errorStyle.Render("  collect: "+m.lastErr) + "\n"
	}

	out += "\n" + helpStyle.Render("  c collect · t threshold · a toggle auto · p pause producers · r restart interpreter · f inject failure · q quit") + "\n"
	return out
}

func runInteractive(cfg finalizer.Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}

	in := simulator.New()
	in.Initialize()
	fin := finalizer.New(in, cfg)
	fin.OnInterpreterInit()

	errs := &errorTap{}
	fin.SubscribeError(errs)

	var paused atomic.Bool
	done := make(chan struct{})
	defer close(done)

	// Steady background workload: wrappers die, releases get queued.
	for p := 0; p < 2; p++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				if !paused.Load() {
					if h := in.NewObject(1); h != 0 {
						fin.Enqueue(h, fin.Epoch())
					}
				}
				time.Sleep(2 * time.Millisecond)
			}
		}()
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = finalizer.DefaultThreshold
	}
	ti := textinput.New()
	ti.Placeholder = "count"
	ti.CharLimit = 9
	ti.Width = 12

	m := &monitorModel{in: in, fin: fin, errs: errs, auto: cfg.AutoCollect, threshold: threshold, paused: &paused, input: ti}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
