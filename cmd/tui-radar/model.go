package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/internal/poller"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

const (
	altitudeStepFt    = 1000.0
	altitudeMaxStepFt = 5000.0
	listRows          = 8
	minRadiusNM       = 5.0
	maxRadiusNM       = 2500.0
)

// frameMsg carries a frame published by the app.
type frameMsg app.Frame

// pollMsg reports the outcome of a manual refresh.
type pollMsg struct{ err error }

type model struct {
	app   *app.App
	frame app.Frame

	center   coordinates.Geographic
	radiusNM float64

	cursor    int
	searching bool
	status    string

	width  int
	height int
}

func newModel(a *app.App, center coordinates.Geographic, radiusNM float64) model {
	return model{
		app:      a,
		frame:    a.Frame(),
		center:   center,
		radiusNM: radiusNM,
		width:    100,
		height:   40,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = app.Frame(msg)
		m.clampCursor()
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.FocusMsg:
		m.app.SetVisible(true)
		m.frame = m.app.Frame()
		return m, nil

	case tea.BlurMsg:
		m.app.SetVisible(false)
		m.frame = m.app.Frame()
		return m, nil

	case pollMsg:
		switch {
		case errors.Is(msg.err, poller.ErrSkipped):
			m.status = "Refresh skipped: too soon"
		case msg.err != nil:
			m.status = "Refresh failed: " + msg.err.Error()
		default:
			m.status = "Refreshed"
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyEsc:
		m.searching = false
		m.updateFilter(func(fs *tracking.FilterState) { fs.Search = "" })
	case tea.KeyBackspace:
		m.updateFilter(func(fs *tracking.FilterState) {
			if r := []rune(fs.Search); len(r) > 0 {
				fs.Search = string(r[:len(r)-1])
			}
		})
	case tea.KeyRunes, tea.KeySpace:
		m.updateFilter(func(fs *tracking.FilterState) { fs.Search += string(msg.Runes) })
	}
	return m, nil
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "c":
		m.updateFilter(func(fs *tracking.FilterState) { fs.ShowCivilian = !fs.ShowCivilian })
	case "m":
		m.updateFilter(func(fs *tracking.FilterState) { fs.ShowMilitary = !fs.ShowMilitary })
	case "/":
		m.searching = true
	case "[":
		m.updateFilter(func(fs *tracking.FilterState) {
			fs.MinAltitude = max(0, fs.MinAltitude-altitudeStepFt)
		})
	case "]":
		m.updateFilter(func(fs *tracking.FilterState) {
			fs.MinAltitude = min(fs.MaxAltitude, fs.MinAltitude+altitudeStepFt)
		})
	case "{":
		m.updateFilter(func(fs *tracking.FilterState) {
			fs.MaxAltitude = max(fs.MinAltitude, fs.MaxAltitude-altitudeMaxStepFt)
		})
	case "}":
		m.updateFilter(func(fs *tracking.FilterState) {
			fs.MaxAltitude = min(adsb.DefaultAltitudeMaxFt, fs.MaxAltitude+altitudeMaxStepFt)
		})
	case "x":
		m.app.SetFilter(tracking.DefaultFilterState())
		m.refresh()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.frame.Aircraft)-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.cursor < len(m.frame.Aircraft) {
			m.app.Select(m.frame.Aircraft[m.cursor].ID)
			m.refresh()
		}
	case "esc":
		m.app.ClearSelection()
		m.refresh()

	case "p":
		m.app.SetVisible(m.frame.Paused)
		m.refresh()
	case "r":
		return m, m.pollNow()

	case "+", "=":
		m.radiusNM = max(minRadiusNM, m.radiusNM/2)
	case "-", "_":
		m.radiusNM = min(maxRadiusNM, m.radiusNM*2)
	}
	return m, nil
}

func (m *model) updateFilter(fn func(*tracking.FilterState)) {
	m.app.UpdateFilter(fn)
	m.refresh()
}

func (m *model) refresh() {
	m.frame = m.app.Frame()
	m.clampCursor()
}

func (m *model) clampCursor() {
	if m.cursor >= len(m.frame.Aircraft) {
		m.cursor = len(m.frame.Aircraft) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// pollNow refreshes off the event loop; the frame arrives as a frameMsg.
func (m model) pollNow() tea.Cmd {
	p := m.app.Poller()
	return func() tea.Msg {
		if p == nil {
			return pollMsg{err: errors.New("no poller")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := p.PollNow(ctx)
		return pollMsg{err: err}
	}
}

func (m model) scope() scope {
	width := m.width - 46 // info panel
	if width < 40 {
		width = 40
	}
	height := m.height - listRows - 6
	if height < 15 {
		height = 15
	}
	return scope{center: m.center, radiusNM: m.radiusNM, width: width, height: height}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	rowStyle    = lipgloss.NewStyle().Background(lipgloss.Color("237"))
)

func (m model) View() string {
	var s strings.Builder

	title := "ADS RADAR"
	if m.frame.Paused {
		title += " (PAUSED)"
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	sc := m.scope()
	radar := sc.renderRadar(m.frame.Aircraft, m.frame.Selected)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, radar, "  ", m.renderInfo()))
	s.WriteString("\n")
	s.WriteString(m.renderAircraftList())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("c/m: Civil/Mil  /: Search  [/]: Min alt  {/}: Max alt  x: Reset  ↑/↓ ENTER: Select  ESC: Clear  p: Pause  r: Refresh  +/-: Zoom  q: Quit"))
	return s.String()
}

func toggle(on bool) string {
	if on {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

func (m model) renderInfo() string {
	var info strings.Builder
	fs := m.frame.Filter

	info.WriteString(headerStyle.Render("Traffic"))
	info.WriteString("\n")
	fmt.Fprintf(&info, "Tracked:  %d\n", m.frame.Stats.Total)
	fmt.Fprintf(&info, "Military: %d\n", m.frame.Stats.Military)
	fmt.Fprintf(&info, "Ground:   %d\n", m.frame.Stats.Ground)
	fmt.Fprintf(&info, "Visible:  %d\n", m.frame.Visible)
	if !m.frame.UpdatedAt.IsZero() {
		fmt.Fprintf(&info, "Updated:  %s\n", m.frame.UpdatedAt.Local().Format("15:04:05"))
	}
	if m.frame.LastError != "" {
		info.WriteString(offStyle.Render("Fetch failed: " + m.frame.LastError))
		info.WriteString("\n")
	}
	info.WriteString("\n")

	info.WriteString(headerStyle.Render("Filter"))
	info.WriteString("\n")
	fmt.Fprintf(&info, "Civilian: %s\n", toggle(fs.ShowCivilian))
	fmt.Fprintf(&info, "Military: %s\n", toggle(fs.ShowMilitary))
	fmt.Fprintf(&info, "Altitude: %.0f-%.0f ft\n", fs.MinAltitude, fs.MaxAltitude)
	search := fs.Search
	if m.searching {
		search += "_"
	}
	fmt.Fprintf(&info, "Search:   %s\n", search)
	info.WriteString("\n")

	info.WriteString(headerStyle.Render("Scope"))
	info.WriteString("\n")
	fmt.Fprintf(&info, "Center: %.3f°, %.3f°\n", m.center.Latitude, m.center.Longitude)
	fmt.Fprintf(&info, "Radius: %.0f NM\n", m.radiusNM)

	if sel, ok := m.selectedRecord(); ok {
		info.WriteString("\n")
		info.WriteString(headerStyle.Render("Selected"))
		info.WriteString("\n")
		info.WriteString(describe(sel))
	}

	if m.status != "" {
		info.WriteString("\n")
		info.WriteString(helpStyle.Render(m.status))
	}
	return info.String()
}

func (m model) selectedRecord() (adsb.AircraftRecord, bool) {
	if m.frame.Selected == "" {
		return adsb.AircraftRecord{}, false
	}
	return m.app.Store().Get(m.frame.Selected)
}

func describe(ac adsb.AircraftRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ICAO:     %s\n", strings.ToUpper(ac.ID))
	fmt.Fprintf(&b, "Callsign: %s\n", orDash(ac.Callsign))
	fmt.Fprintf(&b, "Country:  %s\n", orDash(ac.OriginCountry))
	fmt.Fprintf(&b, "Altitude: %s\n", formatAltitude(ac))
	fmt.Fprintf(&b, "Speed:    %s\n", formatFloat(ac.Velocity.Speed, "%.0f kts"))
	fmt.Fprintf(&b, "Track:    %s\n", formatFloat(ac.Velocity.Heading, "%.0f°"))
	fmt.Fprintf(&b, "Source:   %s\n", ac.PositionSource)
	fmt.Fprintf(&b, "Trail:    %d points\n", len(ac.Trail))
	return b.String()
}

func (m model) renderAircraftList() string {
	var list strings.Builder

	list.WriteString(headerStyle.Render("Aircraft"))
	fmt.Fprintf(&list, " (%d of %d)\n", m.frame.Visible, m.frame.Stats.Total)

	if len(m.frame.Aircraft) == 0 {
		list.WriteString(helpStyle.Render("  No aircraft match the filter"))
		return list.String()
	}

	start := 0
	if m.cursor >= listRows {
		start = m.cursor - listRows + 1
	}
	end := min(start+listRows, len(m.frame.Aircraft))

	for i := start; i < end; i++ {
		ac := m.frame.Aircraft[i]

		prefix := "  "
		if i == m.cursor {
			prefix = "→ "
		}
		mil := ""
		if ac.IsMilitary {
			mil = " [MIL]"
		}
		sel := ""
		if ac.ID == m.frame.Selected {
			sel = " [SEL]"
		}

		line := fmt.Sprintf("%s%-6s  %-8s  %9s  %8s  %4.0fs%s%s",
			prefix,
			strings.ToUpper(ac.ID),
			orDash(ac.Callsign),
			formatAltitude(ac),
			formatFloat(ac.Velocity.Speed, "%.0f kts"),
			time.Since(ac.LastSeen).Seconds(),
			mil,
			sel,
		)
		if i == m.cursor {
			line = rowStyle.Render(line)
		}
		list.WriteString(line)
		list.WriteString("\n")
	}
	return list.String()
}

func formatAltitude(ac adsb.AircraftRecord) string {
	if ac.Position.OnGround {
		return "GND"
	}
	return formatFloat(ac.Position.Altitude, "%.0f ft")
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
