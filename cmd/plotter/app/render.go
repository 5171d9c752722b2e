package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkSize   = 5
	pixelsPerLabel = 150.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 60
	defaultRightBorder  = 40

	// Border used on all sides when annotations are disabled
	plainBorder = 10

	// Consecutive samples further apart are not joined by a line
	maxGap = time.Second

	defaultDatetimeFormat = "2006-01-02 15:04:05.000"
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for title and legend
	Left   int // Space for value scale
	Bottom int // Space for time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for chart rendering
type RenderConfig struct {
	Width  int // Plot area width in pixels
	Height int // Plot area height in pixels

	// Time display configuration
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	FontSize      float64 // Font size in points
	NoAnnotations bool    // Render the plot area only

	BorderConfig BorderConfig
}

// ChartRenderer draws IMU series as a strip chart
type ChartRenderer struct {
	config RenderConfig
}

// NewChartRenderer creates a new chart renderer with the given configuration
func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	if config.Width < minDimension || config.Height < minDimension {
		return nil, fmt.Errorf("plot area must be at least %dx%d pixels, %dx%d given",
			minDimension, minDimension, config.Width, config.Height)
	}

	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{Top: plainBorder, Left: plainBorder, Bottom: plainBorder, Right: plainBorder}
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &ChartRenderer{config: config}, nil
}

// Render creates an image of the series with annotations
func (r *ChartRenderer) Render(data *SeriesData) (*image.RGBA, error) {
	if data.Len() == 0 {
		return nil, fmt.Errorf("no samples to render")
	}

	borders := r.config.BorderConfig
	fullWidth := r.config.Width + borders.Left + borders.Right
	fullHeight := r.config.Height + borders.Top + borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	c := chart{
		area: image.Rect(
			borders.Left,
			borders.Top,
			borders.Left+r.config.Width,
			borders.Top+r.config.Height,
		),
		data:   data,
		colors: seriesColors(len(data.Series)),
	}
	c.lo, c.hi, c.step = data.BoundsTracker.Scale()
	c.timeStep = calculateNiceTimeStep(data.Duration(), r.config.Width)

	c.drawGrid(img)
	for i := range data.Series {
		c.drawSeries(img, i)
	}
	c.drawFrame(img)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        borders,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, &c); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// chart maps samples onto the plot area of an image.
type chart struct {
	area   image.Rectangle
	data   *SeriesData
	colors []color.RGBA

	lo, hi, step float64
	timeStep     time.Duration
}

func (c *chart) x(t time.Time) int {
	duration := c.data.Duration()
	if duration <= 0 {
		return c.area.Min.X
	}

	ratio := float64(t.Sub(c.data.TimestampStart)) / float64(duration)
	return c.area.Min.X + int(math.Round(ratio*float64(c.area.Dx()-1)))
}

// y clamps values outside of the scale to the plot area edges.
func (c *chart) y(v float64) int {
	ratio := (v - c.lo) / (c.hi - c.lo)
	ratio = math.Max(0, math.Min(1, ratio))
	return c.area.Max.Y - 1 - int(math.Round(ratio*float64(c.area.Dy()-1)))
}

// valueTicks returns the values of the horizontal grid lines.
func (c *chart) valueTicks() []float64 {
	var ticks []float64
	first := math.Ceil(c.lo/c.step) * c.step
	for k := 0; ; k++ {
		v := first + float64(k)*c.step
		if v > c.hi+c.step/1e6 {
			return ticks
		}
		if math.Abs(v) < c.step/1e6 {
			v = 0
		}
		ticks = append(ticks, v)
	}
}

// timeTicks returns the times of the vertical grid lines, aligned to the
// time step.
func (c *chart) timeTicks() []time.Time {
	var ticks []time.Time
	t := c.data.TimestampStart.Truncate(c.timeStep)
	if t.Before(c.data.TimestampStart) {
		t = t.Add(c.timeStep)
	}
	for ; !t.After(c.data.TimestampEnd); t = t.Add(c.timeStep) {
		ticks = append(ticks, t)
	}
	return ticks
}

func (c *chart) drawGrid(img *image.RGBA) {
	for _, v := range c.valueTicks() {
		y := c.y(v)
		for x := c.area.Min.X; x < c.area.Max.X; x++ {
			img.SetRGBA(x, y, gridColor)
		}
	}
	for _, t := range c.timeTicks() {
		x := c.x(t)
		for y := c.area.Min.Y; y < c.area.Max.Y; y++ {
			img.SetRGBA(x, y, gridColor)
		}
	}

	// Zero line
	if c.lo < 0 && c.hi > 0 {
		y := c.y(0)
		for x := c.area.Min.X; x < c.area.Max.X; x++ {
			img.SetRGBA(x, y, axisColor)
		}
	}
}

func (c *chart) drawFrame(img *image.RGBA) {
	r := c.area
	for x := r.Min.X - 1; x <= r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y-1, axisColor)
		img.SetRGBA(x, r.Max.Y, axisColor)
	}
	for y := r.Min.Y - 1; y <= r.Max.Y; y++ {
		img.SetRGBA(r.Min.X-1, y, axisColor)
		img.SetRGBA(r.Max.X, y, axisColor)
	}
}

func (c *chart) drawSeries(img *image.RGBA, i int) {
	values := c.data.Series[i].Values
	timestamps := c.data.Timestamps
	col := c.colors[i]

	px, py := c.x(timestamps[0]), c.y(float64(values[0]))
	img.SetRGBA(px, py, col)

	for j := 1; j < len(values); j++ {
		x, y := c.x(timestamps[j]), c.y(float64(values[j]))
		if timestamps[j].Sub(timestamps[j-1]) > maxGap {
			img.SetRGBA(x, y, col)
		} else {
			drawLine(img, px, py, x, y, col)
		}
		px, py = x, y
	}
}

// drawLine draws a line with Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.SetRGBA(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func calculateNiceTimeStep(duration time.Duration, width int) time.Duration {
	roughStep := time.Duration(float64(duration) / (float64(width) / pixelsPerLabel))

	niceIntervals := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		2 * time.Hour,
		4 * time.Hour,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return interval
		}
	}

	return time.Hour * 6 // Default for very long recordings
}
