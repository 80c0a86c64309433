package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-radar/pkg/adsb"
	"github.com/unklstewy/ads-radar/pkg/coordinates"
)

// Terminal characters are ~2:1 (height:width), so X distances are
// stretched to make circles look round.
const aspectRatio = 0.5

// scope maps geographic positions onto a character grid.
type scope struct {
	center   coordinates.Geographic
	radiusNM float64
	width    int
	height   int
}

func (s scope) centerXY() (int, int) {
	return (s.width - 2) / 2, s.height / 2
}

// screenRadius is the ring radius in rows that corresponds to radiusNM.
func (s scope) screenRadius() float64 {
	maxY := float64(s.height/2 - 1)
	maxX := float64(s.width/2-3) * aspectRatio
	if maxX < maxY {
		return maxX
	}
	return maxY
}

// toScreen converts a position to grid coordinates. It returns -1, -1
// for positions outside the radius or the grid.
func (s scope) toScreen(lat, lon float64) (int, int) {
	pos := coordinates.Geographic{Latitude: lat, Longitude: lon}

	distanceNM := coordinates.DistanceNauticalMiles(s.center, pos)
	if distanceNM > s.radiusNM {
		return -1, -1
	}
	bearing := coordinates.Bearing(s.center, pos)

	scale := s.screenRadius() / s.radiusNM
	screenDist := distanceNM * scale

	// Bearing 0° = North = up = negative Y
	bearingRad := bearing * coordinates.DegreesToRadians
	dx := int(math.Round(screenDist * math.Sin(bearingRad) / aspectRatio))
	dy := -int(math.Round(screenDist * math.Cos(bearingRad)))

	cx, cy := s.centerXY()
	x, y := cx+dx, cy+dy
	if x < 0 || x >= s.width-2 || y < 0 || y >= s.height {
		return -1, -1
	}
	return x, y
}

// grid cell kinds, drawn in increasing priority
const (
	cellEmpty = iota
	cellRing
	cellLabel
	cellTrail
	cellVector
	cellCivil
	cellMilitary
	cellSelected
	cellCenter
)

type cell struct {
	ch   rune
	kind int
}

type grid [][]cell

func newGrid(width, height int) grid {
	g := make(grid, height)
	for y := range g {
		g[y] = make([]cell, width)
		for x := range g[y] {
			g[y][x] = cell{ch: ' '}
		}
	}
	return g
}

// set writes ch unless the cell already holds something more important.
func (g grid) set(x, y int, ch rune, kind int) {
	if y < 0 || y >= len(g) || x < 0 || x >= len(g[y]) {
		return
	}
	if g[y][x].kind > kind {
		return
	}
	g[y][x] = cell{ch: ch, kind: kind}
}

var cellStyles = map[int]lipgloss.Style{
	cellRing:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	cellLabel:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	cellTrail:    lipgloss.NewStyle().Foreground(lipgloss.Color("31")),
	cellVector:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	cellCivil:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	cellMilitary: lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	cellSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
	cellCenter:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Bold(true),
}

// renderRadar draws the filtered aircraft, their trails and range rings.
func (s scope) renderRadar(aircraft []adsb.AircraftRecord, selected string) string {
	g := newGrid(s.width-2, s.height)
	cx, cy := s.centerXY()
	radius := s.screenRadius()

	// Range rings at quarter radius
	for i := 1; i <= 4; i++ {
		r := int(radius * float64(i) / 4)
		drawCircle(g, cx, cy, r, cellRing)
		label := fmt.Sprintf("%.0f", s.radiusNM*float64(i)/4)
		for j, ch := range label {
			g.set(cx+1+j, cy-r, ch, cellLabel)
		}
	}

	g.set(cx, cy-int(radius), 'N', cellCenter)
	g.set(cx, cy+int(radius), 'S', cellCenter)
	g.set(cx+int(radius/aspectRatio), cy, 'E', cellCenter)
	g.set(cx-int(radius/aspectRatio), cy, 'W', cellCenter)
	g.set(cx, cy, '+', cellCenter)

	// Trails first so the current positions draw on top
	for _, ac := range aircraft {
		for _, p := range ac.Trail {
			if x, y := s.toScreen(p.Latitude, p.Longitude); x >= 0 {
				g.set(x, y, '·', cellTrail)
			}
		}
	}

	for _, ac := range aircraft {
		x, y := s.toScreen(ac.Position.Latitude, ac.Position.Longitude)
		if x < 0 {
			continue
		}

		if ac.Velocity.Heading != nil && ac.Velocity.Speed != nil && *ac.Velocity.Speed > 50 {
			drawVelocityVector(g, x, y, *ac.Velocity.Heading, *ac.Velocity.Speed)
		}

		symbol, kind := '○', cellCivil
		if ac.IsMilitary {
			symbol, kind = '◆', cellMilitary
		}
		if ac.ID == selected {
			symbol, kind = '◉', cellSelected
			label := ac.Callsign
			if label == "" {
				label = strings.ToUpper(ac.ID)
			}
			for i, ch := range label {
				g.set(x+2+i, y, ch, cellLabel)
			}
		}
		g.set(x, y, symbol, kind)
	}

	border := cellStyles[cellRing]
	var b strings.Builder
	b.WriteString(border.Render("┌" + strings.Repeat("─", s.width-2) + "┐"))
	b.WriteString("\n")
	for _, row := range g {
		b.WriteString(border.Render("│"))
		for _, c := range row {
			if style, ok := cellStyles[c.kind]; ok {
				b.WriteString(style.Render(string(c.ch)))
			} else {
				b.WriteRune(c.ch)
			}
		}
		b.WriteString(border.Render("│"))
		b.WriteString("\n")
	}
	b.WriteString(border.Render("└" + strings.Repeat("─", s.width-2) + "┘"))
	return b.String()
}

// drawCircle draws a circle using Bresenham's algorithm with the X axis
// stretched by the aspect ratio.
func drawCircle(g grid, cx, cy, radius, kind int) {
	x, y, err := radius, 0, 0
	for x >= y {
		xs := int(float64(x) / aspectRatio)
		ys := int(float64(y) / aspectRatio)

		g.set(cx+xs, cy+y, '·', kind)
		g.set(cx+ys, cy+x, '·', kind)
		g.set(cx-ys, cy+x, '·', kind)
		g.set(cx-xs, cy+y, '·', kind)
		g.set(cx-xs, cy-y, '·', kind)
		g.set(cx-ys, cy-x, '·', kind)
		g.set(cx+ys, cy-x, '·', kind)
		g.set(cx+xs, cy-y, '·', kind)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawVelocityVector draws a short heading line scaled by speed.
func drawVelocityVector(g grid, x, y int, trackDeg, speedKts float64) {
	length := int(speedKts/150.0) + 1
	if length > 4 {
		length = 4
	}
	trackRad := trackDeg * coordinates.DegreesToRadians
	for i := 1; i <= length; i++ {
		dx := int(math.Round(float64(i) * math.Sin(trackRad) / aspectRatio))
		dy := -int(math.Round(float64(i) * math.Cos(trackRad)))
		ch := '-'
		if i == length {
			ch = '→'
		}
		g.set(x+dx, y+dy, ch, cellVector)
	}
}
