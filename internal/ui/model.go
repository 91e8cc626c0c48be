package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"yt2qt/internal/ffmpeg"
	"yt2qt/internal/model"
	"yt2qt/internal/pipeline"
	"yt2qt/internal/progress"
	"yt2qt/internal/ytdlp"
)

// Jobs run one at a time: intermediate files for the same video id would
// collide, and a single transcode saturates the encoder anyway.
const workers = 1

type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	// Dependency check state
	depsChecked bool
	depsErr     error
	ytdlpPath   string
	ffmpegPath  string // empty = conversion unavailable

	// Jobs
	urls     []string
	settings model.Settings
	runOpts  model.RunOptions
	jobOrder []string
	jobs     map[string]*jobState
	running  int
	next     int // next index in urls to start

	// UI
	width, height int
	styles        Styles

	// Internal event channel used by reporter to feed tea messages
	eventCh chan tea.Msg
}

func NewModel(ctx context.Context, urls []string, settings model.Settings, runOpts model.RunOptions) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()

	jobs := make(map[string]*jobState, len(urls))
	order := make([]string, 0, len(urls))
	for i, u := range urls {
		id := "job-" + strconv.Itoa(i)
		js := newJobState(id, u, sty)
		jobs[id] = &js
		order = append(order, id)
	}

	return Model{
		ctx:      c,
		cancel:   cancel,
		urls:     urls,
		settings: settings,
		runOpts:  runOpts,
		jobs:     jobs,
		jobOrder: order,
		styles:   sty,
		eventCh:  make(chan tea.Msg, 256),
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, id := range m.jobOrder {
		sp := m.jobs[id].spinner
		cmds = append(cmds, sp.Tick)
	}
	cmds = append(cmds, m.listenEventsCmd())
	cmds = append(cmds, m.checkDepsCmd())
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case depsCheckedMsg:
		m.depsChecked = true
		m.depsErr = msg.Err
		m.ytdlpPath = msg.YTDLPPath
		m.ffmpegPath = msg.FFmpegPath
		if m.depsErr != nil {
			for _, id := range m.jobOrder {
				js := m.jobs[id]
				js.stage = progress.StageError
				js.status = fmt.Sprintf("Dependency error: %v", m.depsErr)
				js.err = m.depsErr
				js.done = true
			}
			return m, tea.Quit
		}
		return m.startNext(nil)

	case jobUpdateMsg:
		u := msg.U
		if js, ok := m.jobs[u.JobID]; ok {
			js.stage = u.Stage
			js.percent = u.Percent
			if u.Message != "" {
				js.status = u.Message
			}
			if u.ETA != nil {
				js.eta = u.ETA.Round(time.Second).String()
			} else {
				js.eta = ""
			}
			if u.Speed != nil {
				js.speed = *u.Speed
			} else {
				js.speed = ""
			}
		}
	case jobLogMsg:
		l := msg.L
		if js, ok := m.jobs[l.JobID]; ok {
			line := strings.TrimRight(l.Line, "\r\n")
			if len(js.logsRing) > 1000 {
				js.logsRing = js.logsRing[1:]
			}
			js.logsRing = append(js.logsRing, line)
		}
	case jobResultMsg:
		r := msg.R
		if js, ok := m.jobs[r.JobID]; ok {
			js.done = true
			js.err = r.Err
			if r.Err == nil {
				js.stage = progress.StageCompleted
				js.percent = 100
				js.outputPath = r.OutputPath
				js.bytes = r.Bytes
				if r.OutputPath != "" {
					js.status = fmt.Sprintf("Saved: %s (%s)", filepath.Base(r.OutputPath), humanizeBytes(r.Bytes))
				} else {
					js.status = "Completed"
				}
			} else {
				js.stage = progress.StageError
				js.status = r.Err.Error()
				js.percent = -1
			}
			m.running--
			return m.startNext([]tea.Cmd{m.listenEventsCmd()})
		}
	case allDoneMsg:
		return m, tea.Quit
	}

	// Update per-job components (spinner). The event listener re-arms only
	// after it delivered a message, so it never piles up.
	var cmds []tea.Cmd
	switch msg.(type) {
	case jobUpdateMsg, jobLogMsg:
		cmds = append(cmds, m.listenEventsCmd())
	}
	for _, id := range m.jobOrder {
		js := m.jobs[id]
		var c tea.Cmd
		js.spinner, c = js.spinner.Update(msg)
		if c != nil {
			cmds = append(cmds, c)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	summary := m.viewSummary()
	if summary != "" {
		return m.viewHeader() + "\n\n" + m.viewJobs() + "\n" + summary
	}
	return m.viewHeader() + "\n\n" + m.viewJobs()
}

func (m Model) listenEventsCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return allDoneMsg{}
		case msg := <-m.eventCh:
			return msg
		}
	}
}

func (m Model) checkDepsCmd() tea.Cmd {
	return func() tea.Msg {
		yt, yerr := ytdlp.FindBinary(m.settings.YTDLPBinary)
		if yerr != nil {
			return depsCheckedMsg{Err: yerr}
		}
		ff, ferr := ffmpeg.FindBinary(m.settings.FFmpegBinary)
		if ferr != nil {
			// Direct downloads and raw audio still work without ffmpeg.
			ff = ""
		}
		return depsCheckedMsg{YTDLPPath: yt, FFmpegPath: ff}
	}
}

// startNext schedules queued URLs up to the worker limit. Bookkeeping
// happens here on the returned model so the counters survive the update
// cycle; only the blocking job run goes into a command.
func (m Model) startNext(cmds []tea.Cmd) (Model, tea.Cmd) {
	select {
	case <-m.ctx.Done():
		return m, tea.Quit
	default:
	}
	for m.running < workers && m.next < len(m.urls) {
		jobID := m.jobOrder[m.next]
		url := m.urls[m.next]
		m.next++
		m.running++
		if js := m.jobs[jobID]; js != nil {
			js.started = true
			js.status = "Starting"
			js.stage = progress.StageMetadata
		}
		cmds = append(cmds, func() tea.Msg {
			m.runJob(jobID, url)
			return nil
		})
	}
	if m.next >= len(m.urls) && m.running == 0 {
		cmds = append(cmds, func() tea.Msg { return allDoneMsg{} })
	}
	return m, tea.Batch(cmds...)
}

func (m Model) runJob(jobID, url string) {
	rep := teaReporter{ch: m.eventCh}
	svc := pipeline.NewService(
		pipeline.WithSettings(m.settings),
		pipeline.WithReporter(rep),
		pipeline.WithJobID(jobID),
	)
	// The service emits the final Result event itself.
	_, _ = svc.Run(m.ctx, url, m.runOpts)
}

type teaReporter struct {
	ch chan tea.Msg
}

func (r teaReporter) Update(u progress.Update) {
	// Terminal stage updates must not be dropped; everything else may be.
	if u.Stage == progress.StageCompleted || u.Stage == progress.StageError {
		r.ch <- jobUpdateMsg{U: u}
		return
	}
	select {
	case r.ch <- jobUpdateMsg{U: u}:
	default:
	}
}

func (r teaReporter) Log(l progress.Log) {
	select {
	case r.ch <- jobLogMsg{L: l}:
	default:
	}
}

func (r teaReporter) Result(res progress.Result) {
	r.ch <- jobResultMsg{R: res}
}

func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(b)/float64(div), units[exp])
}
