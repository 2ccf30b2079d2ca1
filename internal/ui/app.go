package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bigschom/ssportal/internal/clock"
	"github.com/bigschom/ssportal/internal/notify"
	"github.com/bigschom/ssportal/internal/portal"
	"github.com/bigschom/ssportal/internal/prefs"
	"github.com/bigschom/ssportal/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewQueue View = iota
	ViewLogs
)

// QueueFilter represents the queue filter mode.
type QueueFilter int

const (
	FilterAll QueueFilter = iota
	FilterNew
	FilterInProgress
	FilterMine
)

var filterNames = map[QueueFilter]string{
	FilterAll:        "all",
	FilterNew:        "new",
	FilterInProgress: "in_progress",
	FilterMine:       "mine",
}

// parseFilter maps a persisted filter name back to a QueueFilter.
func parseFilter(name string) QueueFilter {
	for f, n := range filterNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return f
		}
	}
	return FilterAll
}

// RequestUpdater performs status changes for claim and complete. The current
// request is re-read before each change.
type RequestUpdater interface {
	GetRequest(ctx context.Context, id int64) (*portal.ServiceRequest, error)
	UpdateStatus(ctx context.Context, id int64, update portal.StatusUpdate) (*portal.ServiceRequest, error)
}

// FocusTracker receives terminal focus changes.
type FocusTracker interface {
	Set(visible bool)
}

// NotificationToggle enables or mutes notifications.
type NotificationToggle interface {
	SetEnabled(enabled bool)
}

// Options configures the UI.
type Options struct {
	Context       context.Context
	Store         *state.Store
	Updater       RequestUpdater
	Trigger       func(force bool) bool // forced check, blocks until done
	Focus         FocusTracker
	Notifications NotificationToggle
	Sink          *Sink
	Clock         clock.Clock
	Operator      string
	LogPath       string
	RefreshTick   time.Duration
	Prefs         prefs.Prefs
	PrefsPath     string
}

type toast struct {
	n     notify.Notification
	shown time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	store     *state.Store
	updater   RequestUpdater
	trigger   func(force bool) bool
	focus     FocusTracker
	toggle    NotificationToggle
	sink      *Sink
	clk       clock.Clock
	operator  string
	logPath   string
	prefsPath string
	tick      time.Duration
	keys      keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Data state
	snapshot state.Snapshot

	// Queue state
	selectedRow int
	filterMode  QueueFilter
	muted       bool
	busy        bool

	// Detail state
	detailViewport viewport.Model

	// Log state
	logViewport viewport.Model
	logState    logState

	// Transient feedback
	toasts  []toast
	flash   string
	flashAt time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.RefreshTick
	if tick <= 0 {
		tick = DefaultUIInterval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		updater:     opts.Updater,
		trigger:     opts.Trigger,
		focus:       opts.Focus,
		toggle:      opts.Notifications,
		sink:        opts.Sink,
		clk:         clk,
		operator:    strings.TrimSpace(opts.Operator),
		logPath:     opts.LogPath,
		prefsPath:   prefsPath,
		tick:        tick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.Prefs.Theme),
		currentView: ViewQueue,
		filterMode:  parseFilter(opts.Prefs.Filter),
		muted:       opts.Prefs.NotificationsMuted,
		logState:    logState{follow: true},

		detailViewport: viewport.New(0, 0),
		logViewport:    viewport.New(0, 0),
	}
	if m.toggle != nil {
		m.toggle.SetEnabled(!m.muted)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.sink != nil {
		cmds = append(cmds, m.sink.wait())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.updateQueueTable(m.selectedID())
		m.updateDetailViewport()
		m.updateLogViewport()
		return m, nil

	case tea.FocusMsg:
		if m.focus != nil {
			m.focus.Set(true)
		}
		return m, nil

	case tea.BlurMsg:
		if m.focus != nil {
			m.focus.Set(false)
		}
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		prev := m.selectedID()
		m.snapshot = state.Snapshot(msg)
		m.updateQueueTable(prev)
		m.updateDetailViewport()
		return m, nil

	case notificationMsg:
		m.pushToast(notify.Notification(msg))
		m.updateDetailViewport()
		var cmd tea.Cmd
		if m.sink != nil {
			cmd = m.sink.wait()
		}
		return m, cmd

	case actionResultMsg:
		m.busy = false
		if msg.err != nil {
			m.setFlash(fmt.Sprintf("%s %s failed: %v", msg.verb, msg.ref, msg.err))
		} else {
			m.setFlash(fmt.Sprintf("%s %s", titleCase(msg.verb), msg.ref))
		}
		return m, m.snapshotCmd()

	case refreshDoneMsg:
		if msg.ran {
			m.setFlash("Refreshed")
		} else {
			m.setFlash("Refresh skipped (check already running or console hidden)")
		}
		return m, m.snapshotCmd()

	case logLinesMsg:
		m.handleLogLines(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.sink != nil {
			m.sink.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.updateDetailViewport()
		return m, nil

	case key.Matches(msg, m.keys.ViewQueue), key.Matches(msg, m.keys.Escape):
		m.currentView = ViewQueue
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		m.currentView = ViewLogs
		m.logState.follow = true
		m.updateLogViewport()
		cmd := m.refreshLogs()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.ToggleMute):
		m.muted = !m.muted
		if m.toggle != nil {
			m.toggle.SetEnabled(!m.muted)
		}
		m.savePrefs()
		if m.muted {
			m.setFlash("Notifications muted")
		} else {
			m.setFlash("Notifications on")
		}
		return m, nil
	}

	switch m.currentView {
	case ViewLogs:
		return m.handleLogsKey(msg)
	default:
		return m.handleQueueKey(msg)
	}
}

// handleQueueKey processes keyboard input for the queue view.
func (m Model) handleQueueKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.CycleFilter) {
		prev := m.selectedID()
		m.cycleFilter()
		m.savePrefs()
		m.updateQueueTable(prev)
		m.updateDetailViewport()
		return m, nil
	}

	items := m.getSortedItems()
	itemCount := len(items)
	if itemCount == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < itemCount-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = itemCount - 1
	case key.Matches(msg, m.keys.HalfPageDown):
		m.detailViewport.HalfPageDown()
		return m, nil
	case key.Matches(msg, m.keys.HalfPageUp):
		m.detailViewport.HalfPageUp()
		return m, nil
	case key.Matches(msg, m.keys.Claim):
		return m.claimSelected()
	case key.Matches(msg, m.keys.Complete):
		return m.completeSelected()
	default:
		return m, nil
	}

	m.updateDetailViewport()
	return m, nil
}

// cycleFilter cycles through queue filter modes.
func (m *Model) cycleFilter() {
	switch m.filterMode {
	case FilterAll:
		m.filterMode = FilterNew
	case FilterNew:
		m.filterMode = FilterInProgress
	case FilterInProgress:
		if m.operator != "" {
			m.filterMode = FilterMine
		} else {
			m.filterMode = FilterAll
		}
	default:
		m.filterMode = FilterAll
	}
}

// filterLabel returns the display label for the current filter mode.
func (m Model) filterLabel() string {
	switch m.filterMode {
	case FilterNew:
		return "New"
	case FilterInProgress:
		return "In progress"
	case FilterMine:
		return "Mine"
	default:
		return "All"
	}
}

func (m Model) claimSelected() (tea.Model, tea.Cmd) {
	req := m.getSelectedItem()
	switch {
	case req == nil:
		return m, nil
	case m.operator == "":
		m.setFlash("Set operator in config to claim requests")
		return m, nil
	case !req.IsOpen():
		m.setFlash(fmt.Sprintf("%s is already %s", requestRef(*req), portal.StatusLabel(req.Status)))
		return m, nil
	case strings.EqualFold(req.AssignedTo, m.operator) && req.Status == portal.StatusInProgress:
		m.setFlash(fmt.Sprintf("%s is already yours", requestRef(*req)))
		return m, nil
	}
	update := portal.StatusUpdate{Status: portal.StatusInProgress, AssignedTo: m.operator, UpdatedBy: m.operator}
	return m.startAction(*req, update, "claimed", claimable(m.operator))
}

func (m Model) completeSelected() (tea.Model, tea.Cmd) {
	req := m.getSelectedItem()
	if req == nil {
		return m, nil
	}
	if !req.IsOpen() {
		m.setFlash(fmt.Sprintf("%s is already %s", requestRef(*req), portal.StatusLabel(req.Status)))
		return m, nil
	}
	update := portal.StatusUpdate{Status: portal.StatusCompleted, UpdatedBy: m.operator}
	return m.startAction(*req, update, "completed", stillOpen)
}

func (m Model) startAction(req portal.ServiceRequest, update portal.StatusUpdate, verb string, guard actionGuard) (tea.Model, tea.Cmd) {
	if m.updater == nil || m.busy {
		return m, nil
	}
	m.busy = true
	m.setFlash(fmt.Sprintf("Updating %s...", requestRef(req)))
	return m, actionCmd(m.ctx, m.updater, m.trigger, req, update, verb, guard)
}

// actionGuard rejects a change against the request as the backend has it now.
type actionGuard func(current portal.ServiceRequest) error

func stillOpen(current portal.ServiceRequest) error {
	if !current.IsOpen() {
		return fmt.Errorf("already %s", portal.StatusLabel(current.Status))
	}
	return nil
}

func claimable(operator string) actionGuard {
	return func(current portal.ServiceRequest) error {
		if err := stillOpen(current); err != nil {
			return err
		}
		owner := strings.TrimSpace(current.AssignedTo)
		if current.Status == portal.StatusInProgress && owner != "" && !strings.EqualFold(owner, operator) {
			return fmt.Errorf("claimed by %s", owner)
		}
		return nil
	}
}

// handleTick processes the refresh tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs && m.logState.follow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if m.expireTransient(m.clk.Now()) {
		m.updateDetailViewport()
	}

	cmds = append(cmds, tickCmd(m.tick))
	return m, tea.Batch(cmds...)
}

func (m *Model) pushToast(n notify.Notification) {
	m.toasts = append(m.toasts, toast{n: n, shown: m.clk.Now()})
	if len(m.toasts) > MaxToasts {
		m.toasts = m.toasts[len(m.toasts)-MaxToasts:]
	}
}

func (m *Model) setFlash(text string) {
	m.flash = text
	m.flashAt = m.clk.Now()
}

// expireTransient drops old toasts and flash text. It reports whether the
// toast strip shrank.
func (m *Model) expireTransient(now time.Time) bool {
	before := len(m.toasts)
	kept := make([]toast, 0, len(m.toasts))
	for _, t := range m.toasts {
		if now.Sub(t.shown) < ToastLifetime {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
	if m.flash != "" && now.Sub(m.flashAt) >= FlashLifetime {
		m.flash = ""
	}
	return len(m.toasts) != before
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{
		Theme:              m.theme.Name,
		NotificationsMuted: m.muted,
		Filter:             filterNames[m.filterMode],
	})
}

func (m Model) snapshotCmd() tea.Cmd {
	if m.store == nil {
		return nil
	}
	return fetchSnapshotCmd(m.store)
}

func (m Model) refreshCmd() tea.Cmd {
	trigger := m.trigger
	if trigger == nil {
		return nil
	}
	return func() tea.Msg {
		return refreshDoneMsg{ran: trigger(true)}
	}
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if toasts := m.renderToasts(); toasts != "" {
		b.WriteString(toasts)
		b.WriteString("\n")
	}
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	switch m.currentView {
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderQueue())
	}
	return b.String()
}

// contentHeight is the space left under the header, toasts and command bar.
func (m Model) contentHeight() int {
	return max(m.height-2-len(m.toasts), 3)
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type actionResultMsg struct {
	ref  string
	verb string
	err  error
}

type refreshDoneMsg struct {
	ran bool
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func actionCmd(ctx context.Context, updater RequestUpdater, trigger func(bool) bool, req portal.ServiceRequest, update portal.StatusUpdate, verb string, guard actionGuard) tea.Cmd {
	return func() tea.Msg {
		actx, cancel := context.WithTimeout(ctx, ActionTimeout)
		defer cancel()
		result := actionResultMsg{ref: requestRef(req), verb: verb}

		current, err := updater.GetRequest(actx, req.ID)
		if err == nil && current != nil && guard != nil {
			err = guard(*current)
		}
		if err == nil {
			_, err = updater.UpdateStatus(actx, req.ID, update)
		}
		if err == nil && trigger != nil {
			trigger(true)
		}
		result.err = err
		return result
	}
}

// Run starts the Bubble Tea program and blocks until it exits or ctx ends.
func Run(opts Options) error {
	m := New(opts)
	popts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}
	if opts.Context != nil {
		popts = append(popts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(m, popts...)
	_, err := p.Run()
	if opts.Sink != nil {
		opts.Sink.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
