package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/pairsync/internal/config"
	"github.com/roach88/pairsync/internal/coordinator"
	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
	"github.com/roach88/pairsync/internal/transport"
)

// NewTUICommand creates the tui command.
func NewTUICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive phone and watch panes over an in-process link",
		Long: `Open a terminal UI with a phone pane and a watch pane linked in memory.

Keys:
  tab        switch device        up/down  select record
  a          add a record         e        edit selected record
  p          remove last record   f        fetch seed list
  s          send list to peer    r        toggle link reachability
  g          send a corrupt payload
  d          deactivate session   o        activate session
  q          quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			logs := io.Discard
			if rootOpts.Verbose {
				logs = cmd.ErrOrStderr()
			}
			m, err := newTUIModel(cfg, rootOpts.newLogger(cfg, logs))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to set up devices", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := m.start(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to activate devices", err)
			}
			defer m.close()

			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return WrapExitError(ExitFailure, "tui", err)
			}
			return nil
		},
	}
}

type inputMode int

const (
	inputNone inputMode = iota
	inputAdd
	inputEdit
)

// noteMsg carries a coordinator notification into the update loop.
type noteMsg struct {
	device string
	n      coordinator.Notification
}

type tuiModel struct {
	link      *transport.MemLink
	sessions  [2]*transport.MemSession
	devices   [2]*device
	formatter record.Formatter

	focus  int
	cursor [2]int
	mode   inputMode
	input  string
	status string

	notes  chan noteMsg
	cancel context.CancelFunc
	unsubs []func()
}

func newTUIModel(cfg config.Config, logger *slog.Logger) (*tuiModel, error) {
	link, phoneSess, watchSess := transport.NewMemPair("phone", "watch")
	phone, err := newDevice("phone", newStore(cfg), phoneSess, cfg, logger)
	if err != nil {
		return nil, err
	}
	watch, err := newDevice("watch", newStore(cfg), watchSess, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &tuiModel{
		link:      link,
		sessions:  [2]*transport.MemSession{phoneSess, watchSess},
		devices:   [2]*device{phone, watch},
		formatter: cfg.Formatter(),
		notes:     make(chan noteMsg, 64),
		status:    "tab switches device, s sends, q quits",
	}, nil
}

// start runs both coordinators, forwards their notifications and activates
// both sessions. The phone starts with its seed list.
func (m *tuiModel) start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, d := range m.devices {
		go func() { _ = d.coord.Run(ctx) }()
		events, unsub := d.coord.Subscribe(32)
		m.unsubs = append(m.unsubs, unsub)
		go func() {
			for n := range events {
				select {
				case m.notes <- noteMsg{device: d.name, n: n}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	m.devices[0].store.Fetch()
	for _, d := range m.devices {
		if err := d.coord.Activate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *tuiModel) close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	if m.cancel != nil {
		m.cancel()
	}
	for _, d := range m.devices {
		<-d.coord.Done()
	}
	for _, s := range m.sessions {
		_ = s.Close()
	}
}

func (m *tuiModel) waitNote() tea.Cmd {
	return func() tea.Msg {
		return <-m.notes
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return m.waitNote()
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case noteMsg:
		if s := describeNote(msg); s != "" {
			m.status = s
		}
		m.clampCursors()
		return m, m.waitNote()
	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *tuiModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	dev := m.devices[m.focus]
	switch k.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.focus = 1 - m.focus
	case "up", "k":
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
	case "down", "j":
		if m.cursor[m.focus] < dev.store.Len()-1 {
			m.cursor[m.focus]++
		}
	case "a":
		m.mode, m.input = inputAdd, ""
	case "e":
		if r, ok := dev.store.At(m.cursor[m.focus]); ok {
			m.mode, m.input = inputEdit, r.Text
		}
	case "p":
		if r, ok := dev.store.PopLast(); ok {
			m.status = fmt.Sprintf("%s: removed %q", dev.name, r.Text)
		} else {
			m.status = dev.name + ": nothing to remove"
		}
		m.clampCursors()
	case "f":
		dev.store.Fetch()
		m.status = dev.name + ": seed list fetched"
	case "s":
		if err := dev.coord.Send(); err != nil {
			m.status = fmt.Sprintf("%s: %v", dev.name, err)
		}
	case "r":
		up := !m.link.Up()
		m.link.SetReachable(up)
		m.status = "link " + map[bool]string{true: "up", false: "down"}[up]
	case "g":
		m.sessions[m.focus].SendWithReply(context.Background(), []byte("\x00garbage"), nil)
		m.status = dev.name + ": corrupt payload sent"
	case "d":
		m.sessions[m.focus].Deactivate()
	case "o":
		if err := dev.coord.Activate(); err != nil {
			m.status = fmt.Sprintf("%s: %v", dev.name, err)
		}
	}
	return m, nil
}

func (m *tuiModel) handleInputKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	dev := m.devices[m.focus]
	switch k.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.mode, m.input = inputNone, ""
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input)
		if text != "" {
			if m.mode == inputAdd {
				dev.add(text)
				m.cursor[m.focus] = dev.store.Len() - 1
			} else if _, ok := dev.store.At(m.cursor[m.focus]); ok {
				dev.store.Edit(m.cursor[m.focus], text)
			}
		}
		m.mode, m.input = inputNone, ""
	case tea.KeyBackspace, tea.KeyCtrlH, tea.KeyDelete:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(k.Runes)
	}
	return m, nil
}

func (m *tuiModel) clampCursors() {
	for i, d := range m.devices {
		n := d.store.Len()
		if m.cursor[i] >= n {
			m.cursor[i] = max(n-1, 0)
		}
	}
}

func describeNote(msg noteMsg) string {
	n := msg.n
	switch n.Kind {
	case coordinator.StateChanged:
		s := fmt.Sprintf("%s: %s", msg.device, n.Status.State.Label())
		if n.Status.Cause != "" {
			s += " (" + n.Status.Cause + ")"
		}
		return s
	case coordinator.StoreReplaced:
		return fmt.Sprintf("%s: list replaced, %d records", msg.device, len(n.Records))
	case coordinator.SendSkipped:
		return msg.device + ": peer not reachable, nothing sent"
	case coordinator.SendRejected:
		return msg.device + ": a transfer is already in progress"
	case coordinator.SendFailed:
		return fmt.Sprintf("%s: send failed: %v", msg.device, n.Status.Cause)
	case coordinator.ReceiveFailed:
		return msg.device + ": received data could not be read"
	}
	return ""
}

var (
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(52)
	focusStyle   = paneStyle.BorderForeground(lipgloss.Color("12"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	statusStyles = map[linkstate.State]lipgloss.Style{
		linkstate.Initial:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		linkstate.Waiting:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		linkstate.InProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		linkstate.Succeeded:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		linkstate.Failed:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func (m *tuiModel) View() string {
	panes := make([]string, len(m.devices))
	for i, d := range m.devices {
		panes[i] = m.renderPane(i, d)
	}
	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...))
	b.WriteString("\n")
	switch m.mode {
	case inputAdd:
		b.WriteString("new record: " + m.input + "_\n")
	case inputEdit:
		b.WriteString("edit record: " + m.input + "_\n")
	default:
		b.WriteString(m.status + "\n")
	}
	b.WriteString(dimStyle.Render("tab device  a add  e edit  p pop  f fetch  s send  r link  g garbage  q quit"))
	return b.String()
}

func (m *tuiModel) renderPane(i int, d *device) string {
	st := d.coord.Status()
	title := titleStyle.Render(d.name) + " " + statusStyles[st.State].Render("["+st.State.Label()+"]")

	lines := []string{title, ""}
	recs := d.store.Records()
	if len(recs) == 0 {
		lines = append(lines, dimStyle.Render("(no records)"))
	}
	for j, r := range recs {
		line := fmt.Sprintf("%s  %s", m.formatter.FormatTimestamp(r), r.Text)
		if i == m.focus && j == m.cursor[i] {
			line = cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	style := paneStyle
	if i == m.focus {
		style = focusStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}
