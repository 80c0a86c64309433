package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

var tableColumns = []string{"ICAO", "CALLSIGN", "COUNTRY", "ALT FT", "SPD KTS", "HDG", "SQWK", "SRC", "AGE", "TRAIL"}

// view is the tview front end. It is an app.Renderer.
type view struct {
	app  *app.App
	logs *logPanel
	now  func() time.Time

	tviewApp  *tview.Application
	table     *tview.Table
	telemetry *tview.TextView
	logView   *tview.TextView
	search    *tview.InputField
	pages     *tview.Pages

	mu    sync.Mutex
	frame app.Frame

	// dirty wakes the redraw loop; it never blocks the publisher
	dirty chan struct{}
}

func newView(a *app.App, logs *logPanel) *view {
	v := &view{
		app:   a,
		logs:  logs,
		now:   time.Now,
		frame: a.Frame(),
		dirty: make(chan struct{}, 1),
	}
	v.setupUI()
	logs.onChange = v.markDirty
	return v
}

// Render stores the frame and schedules a redraw.
func (v *view) Render(f app.Frame) {
	v.mu.Lock()
	v.frame = f
	v.mu.Unlock()
	v.markDirty()
}

func (v *view) markDirty() {
	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

func (v *view) currentFrame() app.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

func (v *view) setupUI() {
	v.tviewApp = tview.NewApplication()

	v.table = tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)
	v.table.SetBorder(true).SetTitle(" Aircraft ")
	v.table.SetSelectedFunc(func(row, _ int) {
		v.selectRow(row)
	})

	v.telemetry = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	v.telemetry.SetBorder(true).SetTitle(" Telemetry ")

	v.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(200)
	v.logView.SetBorder(true).SetTitle(" Logs ")

	controls := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false).
		SetText(`[yellow]FILTER[-]
  [white]c[-]  Civilian    [white]m[-]  Military
  [white]/[-]  Search      [white]x[-]  Reset
  [white][ ][-] Min alt    [white]{ }[-] Max alt

[yellow]ACTIONS[-]
  [white]ENTER[-] Select   [white]ESC[-] Clear
  [white]p[-]  Pause       [white]r[-]  Refresh
  [white]q[-]  Quit`)
	controls.SetBorder(true).SetTitle(" Controls ")

	v.search = tview.NewInputField().
		SetLabel("Search: ").
		SetFieldWidth(24).
		SetChangedFunc(func(text string) {
			v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.Search = text })
		}).
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEscape {
				v.search.SetText("")
			}
			v.pages.HidePage("search")
			v.tviewApp.SetFocus(v.table)
		})

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.telemetry, 0, 4, false).
		AddItem(controls, 11, 0, false).
		AddItem(v.logView, 0, 3, false)

	layout := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(v.table, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	searchBar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(v.search, 1, 0, true)

	v.pages = tview.NewPages().
		AddPage("main", layout, true, true).
		AddPage("search", searchBar, true, false)

	v.tviewApp.SetRoot(v.pages, true)
	v.tviewApp.SetInputCapture(v.handleKeyboard)
	v.draw()
}

// handleKeyboard handles keyboard input
func (v *view) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if v.search.HasFocus() {
		return event
	}

	switch event.Key() {
	case tcell.KeyEscape:
		v.app.ClearSelection()
		return nil
	case tcell.KeyCtrlC:
		v.tviewApp.Stop()
		return nil
	}

	switch event.Rune() {
	case 'q':
		v.tviewApp.Stop()
	case 'c':
		v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.ShowCivilian = !fs.ShowCivilian })
	case 'm':
		v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.ShowMilitary = !fs.ShowMilitary })
	case '[':
		v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.MinAltitude = max(0, fs.MinAltitude-1000) })
	case ']':
		v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.MinAltitude = min(fs.MaxAltitude, fs.MinAltitude+1000) })
	case '{':
		v.app.UpdateFilter(func(fs *tracking.FilterState) { fs.MaxAltitude = max(fs.MinAltitude, fs.MaxAltitude-5000) })
	case '}':
		v.app.UpdateFilter(func(fs *tracking.FilterState) {
			fs.MaxAltitude = min(adsb.DefaultAltitudeMaxFt, fs.MaxAltitude+5000)
		})
	case 'x':
		v.search.SetText("")
		v.app.SetFilter(tracking.DefaultFilterState())
	case '/':
		v.pages.ShowPage("search")
		v.tviewApp.SetFocus(v.search)
	case 'p':
		v.app.SetVisible(v.currentFrame().Paused)
	case 'r':
		go v.pollNow()
	default:
		return event
	}
	return nil
}

func (v *view) selectRow(row int) {
	f := v.currentFrame()
	if row < 1 || row > len(f.Aircraft) {
		return
	}
	v.app.Select(f.Aircraft[row-1].ID)
}

func (v *view) pollNow() {
	p := v.app.Poller()
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Outcomes are logged by the poller
	p.PollNow(ctx)
}

// redrawLoop applies frames and log lines until ctx is done.
func (v *view) redrawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.dirty:
			v.tviewApp.QueueUpdateDraw(v.draw)
		}
	}
}

// draw refreshes every panel from the current frame.
func (v *view) draw() {
	f := v.currentFrame()
	fillTable(v.table, f, v.now())
	v.telemetry.SetText(telemetryText(f, v.selected(f), v.now()))
	v.logView.SetText(v.logs.Text())
	v.logView.ScrollToEnd()
}

func (v *view) selected(f app.Frame) *adsb.AircraftRecord {
	if f.Selected == "" {
		return nil
	}
	for i := range f.Aircraft {
		if f.Aircraft[i].ID == f.Selected {
			return &f.Aircraft[i]
		}
	}
	// Selected but hidden by the filter
	if rec, ok := v.app.Store().Get(f.Selected); ok {
		return &rec
	}
	return nil
}

// fillTable writes the header and one row per visible aircraft, keeping
// the cursor on the same aircraft when the list changes.
func fillTable(table *tview.Table, f app.Frame, now time.Time) {
	var cursorID string
	if row, _ := table.GetSelection(); row > 0 {
		if cell := table.GetCell(row, 0); cell != nil {
			if id, ok := cell.GetReference().(string); ok {
				cursorID = id
			}
		}
	}

	table.Clear()
	for col, name := range tableColumns {
		table.SetCell(0, col, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}

	cursorRow := 1
	for i, ac := range f.Aircraft {
		row := i + 1
		color := tcell.ColorWhite
		switch {
		case ac.ID == f.Selected:
			color = tcell.ColorGreen
		case ac.IsMilitary:
			color = tcell.ColorOrange
		}
		for col, text := range tableRow(ac, now) {
			cell := tview.NewTableCell(text).SetTextColor(color).SetExpansion(1)
			if col == 0 {
				cell.SetReference(ac.ID)
			}
			table.SetCell(row, col, cell)
		}
		if ac.ID == cursorID {
			cursorRow = row
		}
	}
	if len(f.Aircraft) > 0 {
		table.Select(cursorRow, 0)
	}

	title := fmt.Sprintf(" Aircraft %d/%d ", f.Visible, f.Stats.Total)
	if f.Paused {
		title += "[red](paused)[-] "
	}
	table.SetTitle(title)
}

func tableRow(ac adsb.AircraftRecord, now time.Time) []string {
	alt := "-"
	switch {
	case ac.Position.OnGround:
		alt = "GND"
	case ac.Position.Altitude != nil:
		alt = fmt.Sprintf("%.0f", *ac.Position.Altitude)
	}
	callsign := ac.Callsign
	if ac.IsMilitary {
		callsign += " ✪"
	}
	return []string{
		strings.ToUpper(ac.ID),
		callsign,
		ac.OriginCountry,
		alt,
		optional(ac.Velocity.Speed, "%.0f"),
		optional(ac.Velocity.Heading, "%03.0f"),
		ac.Squawk,
		ac.PositionSource.String(),
		fmt.Sprintf("%.0fs", now.Sub(ac.LastSeen).Seconds()),
		fmt.Sprintf("%d", len(ac.Trail)),
	}
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func telemetryText(f app.Frame, sel *adsb.AircraftRecord, now time.Time) string {
	var b strings.Builder
	fs := f.Filter

	if sel != nil {
		fmt.Fprintf(&b, "[yellow]AIRCRAFT:[-] [white]%s[-] [gray](%s)[-]\n", sel.Callsign, strings.ToUpper(sel.ID))
		fmt.Fprintf(&b, "[gray]Alt:[-]  [white]%s ft[-]  [gray]Spd:[-] [white]%s kts[-]\n",
			optional(sel.Position.Altitude, "%.0f"), optional(sel.Velocity.Speed, "%.0f"))
		fmt.Fprintf(&b, "[gray]Hdg:[-]  [white]%s°[-]  [gray]V/S:[-] [white]%s fpm[-]\n",
			optional(sel.Velocity.Heading, "%.0f"), optional(sel.Velocity.VerticalRate, "%.0f"))
		fmt.Fprintf(&b, "[gray]Pos:[-]  [white]%.4f°, %.4f°[-]\n", sel.Position.Latitude, sel.Position.Longitude)
		fmt.Fprintf(&b, "[gray]Trail:[-] [white]%d points[-]\n", len(sel.Trail))
	} else {
		b.WriteString("[gray]No aircraft selected[-]\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "[yellow]TRAFFIC:[-] [white]%d tracked[-]\n", f.Stats.Total)
	fmt.Fprintf(&b, "[gray]Military:[-] [white]%d[-]  [gray]Ground:[-] [white]%d[-]\n", f.Stats.Military, f.Stats.Ground)
	fmt.Fprintf(&b, "[gray]Visible:[-]  [white]%d[-]\n", f.Visible)
	if !f.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "[gray]Updated:[-]  [white]%.0fs ago[-]\n", now.Sub(f.UpdatedAt).Seconds())
	}
	if f.LastError != "" {
		fmt.Fprintf(&b, "[red]Fetch failed:[-] %s\n", tview.Escape(f.LastError))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "[yellow]FILTER:[-]\n")
	fmt.Fprintf(&b, "[gray]Civilian:[-] %s  [gray]Military:[-] %s\n", onOff(fs.ShowCivilian), onOff(fs.ShowMilitary))
	fmt.Fprintf(&b, "[gray]Altitude:[-] [white]%.0f-%.0f ft[-]\n", fs.MinAltitude, fs.MaxAltitude)
	if fs.Search != "" {
		fmt.Fprintf(&b, "[gray]Search:[-]   [white]%s[-]\n", tview.Escape(fs.Search))
	}
	return b.String()
}

func onOff(on bool) string {
	if on {
		return "[green]on[-]"
	}
	return "[red]off[-]"
}

// Run starts the redraw loop and blocks until the UI exits.
func (v *view) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go v.redrawLoop(ctx)
	return v.tviewApp.Run()
}
