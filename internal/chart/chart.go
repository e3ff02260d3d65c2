// Package chart renders recorded sessions as PNG waveform plots: voltage
// and current over time on a shared time axis.
package chart

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fnb-tools/fnbmon/internal/session"
	"github.com/fnb-tools/fnbmon/internal/stats"
)

// ErrNoReadings is returned when a session has nothing to plot.
var ErrNoReadings = errors.New("session has no readings")

const (
	dpi      = 72.0
	fontSize = 13.0

	defaultWidth  = 1200
	defaultHeight = 600

	// Border sizes in pixels.
	topBorder    = 30
	leftBorder   = 70 // voltage scale
	rightBorder  = 70 // current scale
	bottomBorder = 60 // time scale and info bar

	tickMarkLength = 5
	pixelsPerTick  = 120

	defaultTimeFormat = "15:04:05"
)

var (
	colorBackground = color.White
	colorGrid       = color.RGBA{0xE0, 0xE0, 0xE0, 0xFF}
	colorAxis       = color.Black
	colorVoltage    = color.RGBA{0x1F, 0x77, 0xB4, 0xFF}
	colorCurrent    = color.RGBA{0xD6, 0x27, 0x28, 0xFF}
)

// Config holds the plot options. Zero values fall back to defaults.
type Config struct {
	Width      int
	Height     int
	TimeFormat string
	Location   *time.Location

	// FontPath optionally points at a TTF file. Without one the plot is
	// labelled with a built-in bitmap face.
	FontPath string
	FontSize float64
}

// Renderer draws session plots. A Renderer is safe to reuse across
// sessions but not across goroutines.
type Renderer struct {
	config Config
	face   font.Face
}

// New creates a Renderer, loading the configured font if one is set.
func New(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}

	var face font.Face = basicfont.Face7x13
	if config.FontPath != "" {
		fontBytes, err := os.ReadFile(config.FontPath)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		parsedFont, err := freetype.ParseFont(fontBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing font: %w", err)
		}
		face = truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
	}

	return &Renderer{config: config, face: face}, nil
}

// Render draws the session's voltage and current waveforms.
func (r *Renderer) Render(s *session.Session) (*image.RGBA, error) {
	if len(s.Readings) == 0 {
		return nil, ErrNoReadings
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	plot := image.Rect(leftBorder, topBorder, r.config.Width-rightBorder, r.config.Height-bottomBorder)

	vMin, vMax := valueRange(s, func(r float64, c float64) float64 { return r })
	cMin, cMax := valueRange(s, func(r float64, c float64) float64 { return c })

	r.drawGrid(img, plot)
	r.drawVoltageScale(img, plot, vMin, vMax)
	r.drawCurrentScale(img, plot, cMin, cMax)
	r.drawTimeScale(img, plot, s)

	r.drawSeries(img, plot, s, vMin, vMax, colorVoltage, func(rd float64, c float64) float64 { return rd })
	r.drawSeries(img, plot, s, cMin, cMax, colorCurrent, func(rd float64, c float64) float64 { return c })

	r.drawInfoBar(img, s)

	return img, nil
}

// RenderTo encodes the plot as PNG.
func (r *Renderer) RenderTo(w io.Writer, s *session.Session) error {
	img, err := r.Render(s)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// valueRange computes a padded plotting range for one series. Flat series
// are padded symmetrically so they plot mid-height instead of dividing by
// zero.
func valueRange(s *session.Session, pick func(v, c float64) float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, rd := range s.Readings {
		v := pick(rd.Voltage, rd.Current)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if hi == lo {
		pad := math.Max(math.Abs(hi)*0.1, 0.1)
		return lo - pad, hi + pad
	}

	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

func (r *Renderer) drawGrid(img *image.RGBA, plot image.Rectangle) {
	for _, x := range ticks(plot.Min.X, plot.Max.X) {
		vline(img, x, plot.Min.Y, plot.Max.Y, colorGrid)
	}
	for _, y := range ticks(plot.Min.Y, plot.Max.Y) {
		hline(img, plot.Min.X, plot.Max.X, y, colorGrid)
	}

	// Axis frame.
	hline(img, plot.Min.X, plot.Max.X, plot.Max.Y, colorAxis)
	vline(img, plot.Min.X, plot.Min.Y, plot.Max.Y, colorAxis)
	vline(img, plot.Max.X, plot.Min.Y, plot.Max.Y, colorAxis)
}

func (r *Renderer) drawVoltageScale(img *image.RGBA, plot image.Rectangle, lo, hi float64) {
	for _, y := range ticks(plot.Min.Y, plot.Max.Y) {
		ratio := float64(plot.Max.Y-y) / float64(plot.Dy())
		value := lo + ratio*(hi-lo)

		label := fmt.Sprintf("%.2fV", value)
		width := font.MeasureString(r.face, label).Round()
		r.drawText(img, label, plot.Min.X-width-tickMarkLength-4, y+4, colorVoltage)

		hline(img, plot.Min.X-tickMarkLength, plot.Min.X, y, colorAxis)
	}
}

func (r *Renderer) drawCurrentScale(img *image.RGBA, plot image.Rectangle, lo, hi float64) {
	for _, y := range ticks(plot.Min.Y, plot.Max.Y) {
		ratio := float64(plot.Max.Y-y) / float64(plot.Dy())
		value := lo + ratio*(hi-lo)

		fract, suffix := humanize.ComputeSI(value)
		label := fmt.Sprintf("%.2f%sA", fract, suffix)
		r.drawText(img, label, plot.Max.X+tickMarkLength+4, y+4, colorCurrent)

		hline(img, plot.Max.X, plot.Max.X+tickMarkLength, y, colorAxis)
	}
}

func (r *Renderer) drawTimeScale(img *image.RGBA, plot image.Rectangle, s *session.Session) {
	first := s.Readings[0].Timestamp
	last := s.Readings[len(s.Readings)-1].Timestamp
	span := last.Sub(first)

	for _, x := range ticks(plot.Min.X, plot.Max.X) {
		ratio := float64(x-plot.Min.X) / float64(plot.Dx())
		at := first.Add(time.Duration(ratio * float64(span)))

		label := at.In(r.config.Location).Format(r.config.TimeFormat)
		width := font.MeasureString(r.face, label).Round()
		r.drawText(img, label, x-width/2, plot.Max.Y+tickMarkLength+14, colorAxis)

		vline(img, x, plot.Max.Y, plot.Max.Y+tickMarkLength, colorAxis)
	}
}

// drawSeries plots one quantity as a connected polyline.
func (r *Renderer) drawSeries(img *image.RGBA, plot image.Rectangle, s *session.Session, lo, hi float64, c color.Color, pick func(v, cur float64) float64) {
	first := s.Readings[0].Timestamp
	span := s.Readings[len(s.Readings)-1].Timestamp.Sub(first)

	prevX, prevY := -1, -1
	for _, rd := range s.Readings {
		var xRatio float64
		if span > 0 {
			xRatio = float64(rd.Timestamp.Sub(first)) / float64(span)
		}
		yRatio := (pick(rd.Voltage, rd.Current) - lo) / (hi - lo)

		x := plot.Min.X + int(xRatio*float64(plot.Dx()))
		y := plot.Max.Y - int(yRatio*float64(plot.Dy()))

		if prevX >= 0 {
			line(img, prevX, prevY, x, y, c)
		}
		prevX, prevY = x, y
	}
}

func (r *Renderer) drawInfoBar(img *image.RGBA, s *session.Session) {
	y := r.config.Height - 10

	energy, energySuffix := humanize.ComputeSI(s.Stats.EnergyWh)
	capacity, capacitySuffix := humanize.ComputeSI(s.Stats.CapacityAh)

	info := fmt.Sprintf("%s  |  %s  |  %s  |  %.3f%sWh  %.3f%sAh",
		s.Name,
		s.ConnectionType,
		stats.FormatDuration(s.Stats.Duration),
		energy, energySuffix,
		capacity, capacitySuffix,
	)
	r.drawText(img, info, leftBorder, y, colorAxis)
}

func (r *Renderer) drawText(img *image.RGBA, text string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// ticks returns evenly spaced pixel positions between lo and hi.
func ticks(lo, hi int) []int {
	count := (hi - lo) / pixelsPerTick
	if count < 2 {
		count = 2
	}

	out := make([]int, 0, count+1)
	for i := 0; i <= count; i++ {
		out = append(out, lo+i*(hi-lo)/count)
	}
	return out
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y <= y1; y++ {
		img.Set(x, y, c)
	}
}

// line draws a straight segment using integer error accumulation.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)

	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
