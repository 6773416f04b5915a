package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	TransferView
	ResultView
)

// number of search lines kept on screen during a transfer
const logLines = 8

// Runner runs one transfer. Implemented by [tasks.TransferEngine].
type Runner interface {
	Run(ctx context.Context, req tasks.TransferRequest, progress chan<- tasks.ProgressUpdate) *models.TransferJob
}

// Browser reads the session's playlists on the source platform. Implemented by services.Source.
type Browser interface {
	Playlists(ctx context.Context, token string) ([]models.Playlist, error)
	ExportPlaylist(ctx context.Context, token, ref string) (*models.PlaylistExport, error)
}

// Config wires a [Model].
//
// With Request set the TUI starts the transfer immediately and only shows progress and result.
// Otherwise Browser and Tokens are used to pick a source playlist first.
type Config struct {
	Session     string
	Source      models.Platform
	Destination models.Platform
	Runner      Runner
	Browser     Browser
	Tokens      tasks.TokenProvider
	Request     *tasks.TransferRequest
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	cfg    Config
	view   ViewState
	width  int
	height int

	playlistList list.Model
	trackList    list.Model
	loaded       bool
	selected     *models.PlaylistExport

	run      *transferRun
	cancel   context.CancelFunc
	bar      progress.Model
	spinner  spinner.Model
	current  tasks.ProgressUpdate
	log      []string
	matched  int
	missed   int
	job      *models.TransferJob
	err      error
	quitting bool

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, cfg Config) *Model {
	view := PlaylistListView
	if cfg.Request != nil {
		view = TransferView
	}
	return &Model{
		ctx:     ctx,
		cfg:     cfg,
		view:    view,
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Job returns the finished transfer, or nil when none completed.
func (m *Model) Job() *models.TransferJob { return m.job }

// Err returns the error that stopped the TUI, if any.
func (m *Model) Err() error { return m.err }

// Init starts the transfer directly or fetches the source playlists.
func (m *Model) Init() tea.Cmd {
	if m.cfg.Request != nil {
		return tea.Batch(m.spinner.Tick, m.startTransfer(*m.cfg.Request))
	}
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(msg.Width-8, 20)
		if m.loaded {
			m.playlistList.SetSize(msg.Width-4, msg.Height-6)
		}
		if m.selected != nil {
			m.trackList.SetSize(msg.Width-4, msg.Height-6)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		if m.view != TransferView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case playlistsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.playlistList = list.New(playlistItems(msg.playlists), list.NewDefaultDelegate(), m.width-4, m.height-6)
		m.playlistList.Title = m.cfg.Source.DisplayName() + " Playlists"
		m.loaded = true
		return m, nil

	case tracksFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = PlaylistListView
			return m, nil
		}
		m.err = nil
		m.selected = msg.playlist
		m.trackList = list.New(trackItems(msg.playlist.Tracks), list.NewDefaultDelegate(), m.width-4, m.height-6)
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", msg.playlist.Playlist.Name)
		m.view = TrackListView
		return m, nil

	case progressMsg:
		m.record(tasks.ProgressUpdate(msg))
		return m, m.waitForProgress()

	case transferDoneMsg:
		m.job = msg.job
		m.view = ResultView
		m.run, m.cancel = nil, nil
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}

	return m.updateLists(msg)
}

// record folds an engine update into the transfer view.
func (m *Model) record(u tasks.ProgressUpdate) {
	m.current = u
	if u.Phase != tasks.SearchTracks {
		return
	}
	if matched, ok := u.Data.(bool); ok {
		if matched {
			m.matched++
		} else {
			m.missed++
		}
	}
	m.log = append(m.log, u.Message)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) && (!m.filtering() || msg.String() == "ctrl+c") {
		if m.cancel != nil {
			m.quitting = true
			m.cancel()
			return m, nil
		}
		return m, tea.Quit
	}

	switch m.view {
	case PlaylistListView:
		if key.Matches(msg, m.keys.enter) && m.playlistList.FilterState() != list.Filtering {
			if pl, ok := m.playlistList.SelectedItem().(playlistItem); m.loaded && ok {
				return m, m.fetchTracks(pl.playlist.ID)
			}
		}
	case TrackListView:
		switch {
		case key.Matches(msg, m.keys.back) && m.trackList.FilterState() == list.Unfiltered:
			m.view = PlaylistListView
			return m, nil
		case key.Matches(msg, m.keys.enter) && m.trackList.FilterState() != list.Filtering:
			m.view = ConfirmView
			return m, nil
		}
	case ConfirmView:
		switch {
		case key.Matches(msg, m.keys.yes):
			m.view = TransferView
			req := tasks.TransferRequest{
				Session:     m.cfg.Session,
				Source:      m.cfg.Source,
				Destination: m.cfg.Destination,
				SourceURL:   m.selected.Playlist.URL,
				Tracks:      m.selected.Tracks,
				Name:        m.selected.Playlist.Name,
			}
			return m, tea.Batch(m.spinner.Tick, m.startTransfer(req))
		case key.Matches(msg, m.keys.no, m.keys.back):
			m.view = TrackListView
		}
		return m, nil
	case TransferView:
		if key.Matches(msg, m.keys.cancel) && m.cancel != nil {
			m.cancel()
		}
		return m, nil
	case ResultView:
		if key.Matches(msg, m.keys.restart) && m.cfg.Request == nil {
			m.reset()
		}
		return m, nil
	}

	return m.updateLists(msg)
}

// filtering reports whether a list is capturing typed text.
func (m *Model) filtering() bool {
	switch m.view {
	case PlaylistListView:
		return m.loaded && m.playlistList.FilterState() == list.Filtering
	case TrackListView:
		return m.trackList.FilterState() == list.Filtering
	}
	return false
}

func (m *Model) reset() {
	m.view = PlaylistListView
	m.selected = nil
	m.job = nil
	m.err = nil
	m.current = tasks.ProgressUpdate{}
	m.log = nil
	m.matched, m.missed = 0, 0
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		if m.loaded {
			m.playlistList, cmd = m.playlistList.Update(msg)
		}
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) token() (string, error) {
	return m.cfg.Tokens.Token(m.ctx, m.cfg.Session, m.cfg.Source)
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		token, err := m.token()
		if err != nil {
			return playlistsFetchedMsg{err: err}
		}
		playlists, err := m.cfg.Browser.Playlists(m.ctx, token)
		return playlistsFetchedMsg{playlists: playlists, err: err}
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		token, err := m.token()
		if err != nil {
			return tracksFetchedMsg{err: err}
		}
		playlist, err := m.cfg.Browser.ExportPlaylist(m.ctx, token, playlistID)
		return tracksFetchedMsg{playlist: playlist, err: err}
	}
}

// transferRun connects a running engine with the TUI. updates is closed after the job is sent on
// done, so every update is seen before the result.
type transferRun struct {
	updates chan tasks.ProgressUpdate
	done    chan *models.TransferJob
}

// startTransfer runs the engine in the background.
func (m *Model) startTransfer(req tasks.TransferRequest) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	run := &transferRun{
		updates: make(chan tasks.ProgressUpdate, 64),
		done:    make(chan *models.TransferJob, 1),
	}
	m.run, m.cancel = run, cancel
	m.current = tasks.ProgressUpdate{Message: tasks.QueuedMessage}

	go func() {
		defer cancel()
		run.done <- m.cfg.Runner.Run(ctx, req, run.updates)
		close(run.updates)
	}()

	return m.waitForProgress()
}

// waitForProgress returns the next update, or the finished job once the updates are drained.
func (m *Model) waitForProgress() tea.Cmd {
	run := m.run
	if run == nil {
		return nil
	}
	return func() tea.Msg {
		if u, ok := <-run.updates; ok {
			return progressMsg(u)
		}
		return transferDoneMsg{job: <-run.done}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == PlaylistListView {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + m.helpView()
	}

	switch m.view {
	case PlaylistListView:
		if !m.loaded {
			return fmt.Sprintf("Loading %s playlists…\n", m.cfg.Source.DisplayName())
		}
		return m.playlistList.View() + "\n" + m.helpView()
	case TrackListView:
		return m.trackList.View() + "\n" + m.helpView()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) helpView() string {
	return m.help.ShortHelpView(m.keys.forView(m.view, m.cfg.Request == nil))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Transfer '%s' to %s?", m.selected.Playlist.Name, m.cfg.Destination.DisplayName()))
	info := fmt.Sprintf("Playlist: %s\nTracks: %d\n", m.selected.Playlist.Name, len(m.selected.Tracks))
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.helpView())
}

func (m *Model) renderTransfer() string {
	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("%s → %s", m.cfg.Source.DisplayName(), m.cfg.Destination.DisplayName())))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.current.Percent) / 100))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.current.Message)

	if m.matched+m.missed > 0 {
		fmt.Fprintf(&b, "%s  %s\n", styles.ok.Render(fmt.Sprintf("%d matched", m.matched)), styles.warn.Render(fmt.Sprintf("%d missing", m.missed)))
	}
	if len(m.log) > 0 {
		b.WriteString("\n" + styles.muted.Render(strings.Join(m.log, "\n")) + "\n")
	}

	b.WriteString("\n" + m.helpView())
	return b.String()
}

func (m *Model) renderResult() string {
	if m.job == nil {
		return styles.err.Render("No result available") + "\n\n" + m.helpView()
	}

	s := m.job.Summary()
	var b strings.Builder
	b.WriteString(styles.Status(s.Status).Render(s.Message))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Status: %s\nMatched: %d/%d\n", s.Status, s.TracksFound, s.TracksTotal)
	if s.DestinationURL != "" {
		fmt.Fprintf(&b, "Playlist: %s\n", s.DestinationURL)
	}

	if len(s.Warnings) > 0 {
		b.WriteString("\n" + styles.warn.Render(fmt.Sprintf("%d tracks were not found:", len(s.Warnings))))
		for _, w := range s.Warnings {
			b.WriteString("\n  • " + w)
		}
		b.WriteString("\n")
	}

	return styles.box.Render(b.String()) + "\n" + m.helpView()
}
