package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/HubConnect/internal/connect"
	"github.com/router-for-me/HubConnect/internal/hubspot"
	"github.com/router-for-me/HubConnect/internal/popup"
	"github.com/router-for-me/HubConnect/internal/util"
)

const (
	maxLogLines  = 8
	maxItemLines = 10
)

// ItemLoader loads CRM items for stored credentials.
type ItemLoader interface {
	Load(ctx context.Context, credentials string) ([]byte, error)
}

// Options configures the app.
type Options struct {
	Session      connect.Session
	Params       connect.Params
	Backend      connect.Backend
	Popups       popup.Controller
	Loader       ItemLoader
	Hook         *LogHook
	PollInterval time.Duration
}

// owner holds the integration parameters on behalf of the app. The widget
// writes through set from its own goroutine; the app reads on widgetChangedMsg.
type owner struct {
	mu      sync.Mutex
	params  connect.Params
	changed chan struct{}
}

func (o *owner) set(p connect.Params) {
	o.store(p)
	o.signal()
}

func (o *owner) store(p connect.Params) {
	o.mu.Lock()
	o.params = p.Clone()
	o.mu.Unlock()
}

func (o *owner) snapshot() connect.Params {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.params.Clone()
}

func (o *owner) signal() {
	select {
	case o.changed <- struct{}{}:
	default:
	}
}

type widgetChangedMsg struct{}

type connectDoneMsg struct{ err error }

type itemsMsg struct {
	items []hubspot.IntegrationItem
	err   error
}

type logLineMsg logLine

// App is the root bubbletea model.
type App struct {
	session connect.Session
	widget  *connect.Widget
	owner   *owner
	loader  ItemLoader
	hook    *LogHook

	params  connect.Params
	state   connect.State
	spinner spinner.Model

	items   []hubspot.IntegrationItem
	loading bool
	status  string
	err     string
	logs    []logLine

	width int
}

// NewApp builds the app and its connect widget.
func NewApp(opts Options) App {
	o := &owner{params: opts.Params.Clone(), changed: make(chan struct{}, 1)}
	w := connect.New(opts.Session, opts.Params, o.set, opts.Backend, opts.Popups, connect.Options{
		PollInterval: opts.PollInterval,
		OnChange:     func(connect.State) { o.signal() },
	})
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)
	return App{
		session: opts.Session,
		widget:  w,
		owner:   o,
		loader:  opts.Loader,
		hook:    opts.Hook,
		params:  o.snapshot(),
		state:   w.State(),
		spinner: sp,
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.waitForChange}
	if a.hook != nil {
		cmds = append(cmds, a.waitForLog)
	}
	return tea.Batch(cmds...)
}

func (a App) waitForChange() tea.Msg {
	<-a.owner.changed
	return widgetChangedMsg{}
}

func (a App) waitForLog() tea.Msg {
	if a.hook == nil {
		return nil
	}
	line, ok := a.hook.next()
	if !ok {
		return nil
	}
	return logLineMsg(line)
}

func (a App) connectCmd() tea.Msg {
	return connectDoneMsg{err: a.widget.Connect(context.Background())}
}

func (a App) loadCmd(credentials string) tea.Cmd {
	loader := a.loader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		data, err := loader.Load(ctx, credentials)
		if err != nil {
			return itemsMsg{err: err}
		}
		var items []hubspot.IntegrationItem
		if err = json.Unmarshal(data, &items); err != nil {
			return itemsMsg{err: fmt.Errorf("decode items: %w", err)}
		}
		return itemsMsg{items: items}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case widgetChangedMsg:
		before := a.state
		a.params = a.owner.snapshot()
		a.state = a.widget.State()
		cmds := []tea.Cmd{a.waitForChange}
		if a.state == connect.Connecting && before != connect.Connecting {
			cmds = append(cmds, a.spinner.Tick)
		}
		if a.state == connect.Connected && before != connect.Connected {
			a.status = "HubSpot account linked."
		}
		return a, tea.Batch(cmds...)

	case connectDoneMsg:
		switch {
		case msg.err == nil, errors.Is(msg.err, connect.ErrSuperseded):
		case errors.Is(msg.err, connect.ErrCancelled):
			a.status = "Connection cancelled."
		default:
			a.err = msg.err.Error()
		}
		return a, nil

	case itemsMsg:
		a.loading = false
		if msg.err != nil {
			a.err = msg.err.Error()
			return a, nil
		}
		a.items = msg.items
		a.status = fmt.Sprintf("Loaded %d items.", len(msg.items))
		return a, nil

	case logLineMsg:
		a.logs = append(a.logs, logLine(msg))
		if len(a.logs) > maxLogLines {
			a.logs = a.logs[len(a.logs)-maxLogLines:]
		}
		return a, a.waitForLog

	case spinner.TickMsg:
		if a.state != connect.Connecting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		a.widget.Cancel()
		return a, tea.Quit
	case "enter", " ":
		if a.state == connect.Connected {
			return a, nil
		}
		a.err = ""
		a.status = ""
		return a, a.connectCmd
	case "esc":
		a.widget.Cancel()
		return a, nil
	case "x":
		if !a.params.HasCredentials() {
			return a, nil
		}
		p := a.params.Clone()
		delete(p, "credentials")
		a.owner.store(p)
		a.params = p
		a.items = nil
		a.status = "Credentials cleared."
		a.widget.SetParams(p)
		a.state = a.widget.State()
		return a, nil
	case "l":
		if a.loader == nil || a.loading || !a.params.HasCredentials() {
			return a, nil
		}
		a.loading = true
		a.err = ""
		a.status = "Loading items..."
		return a, a.loadCmd(a.params.Credentials())
	}
	return a, nil
}

func (a App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("HubSpot Integration"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("User") + valueStyle.Render(a.session.UserID) + "\n")
	b.WriteString(labelStyle.Render("Organization") + valueStyle.Render(a.session.OrgID) + "\n\n")

	b.WriteString(a.renderButton())
	b.WriteString("\n\n")

	var details strings.Builder
	kind, _ := a.params["type"].(string)
	if kind == "" {
		kind = "-"
	}
	details.WriteString(labelStyle.Render("Type") + valueStyle.Render(kind) + "\n")
	creds := "-"
	if a.params.HasCredentials() {
		creds = util.HideSecret(a.params.Credentials())
	}
	details.WriteString(labelStyle.Render("Credentials") + valueStyle.Render(creds))
	if len(a.items) > 0 {
		details.WriteString("\n\n")
		details.WriteString(renderItems(a.items))
	}
	b.WriteString(sectionStyle.Render(details.String()))
	b.WriteString("\n")

	if a.status != "" {
		b.WriteString(helpStyle.Render(a.status) + "\n")
	}
	if a.err != "" {
		b.WriteString(errorStyle.Render("Error: "+a.err) + "\n")
	}
	for _, line := range a.logs {
		b.WriteString(logLevelStyle(line.level).Render(line.text) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(a.helpText()))
	return b.String()
}

func (a App) renderButton() string {
	label := a.state.Label()
	switch a.state {
	case connect.Connecting:
		return buttonConnecting.Render(a.spinner.View() + " " + label)
	case connect.Connected:
		return buttonConnected.Render(label)
	default:
		return buttonDisconnected.Render(label)
	}
}

func (a App) helpText() string {
	switch a.state {
	case connect.Connecting:
		return "[enter] restart • [esc] cancel • [q] quit"
	case connect.Connected:
		help := "[x] clear credentials • [q] quit"
		if a.loader != nil {
			help = "[l] load items • " + help
		}
		return help
	default:
		return "[enter] connect • [q] quit"
	}
}

func renderItems(items []hubspot.IntegrationItem) string {
	var b strings.Builder
	shown := items
	if len(shown) > maxItemLines {
		shown = shown[:maxItemLines]
	}
	for i, item := range shown {
		name := "(unnamed)"
		if item.Name != nil && *item.Name != "" {
			name = *item.Name
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(labelStyle.Render(item.Type) + valueStyle.Render(name+" #"+item.ID))
	}
	if rest := len(items) - len(shown); rest > 0 {
		_, _ = fmt.Fprintf(&b, "\n%s", helpStyle.Render(fmt.Sprintf("... and %d more", rest)))
	}
	return b.String()
}

// Run starts the app and blocks until the user quits or ctx ends. It returns the
// parameters the app owned at exit. When output is nil the app renders to stdout.
func Run(ctx context.Context, opts Options, output io.Writer) (connect.Params, error) {
	if output == nil {
		output = os.Stdout
	}
	app := NewApp(opts)
	defer app.widget.Cancel()
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithOutput(output), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	if m, ok := final.(App); ok {
		return m.owner.snapshot(), nil
	}
	return app.owner.snapshot(), nil
}
