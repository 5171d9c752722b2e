package app

import (
	"fmt"
	"image"
	"image/draw"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	legendSwatch  = 10
	legendSpacing = 16
)

type annotatorConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, c *chart) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *chart) error
	}{
		{"drawing title", a.drawTitle},
		{"drawing legend", a.drawLegend},
		{"drawing value scale", a.drawValueScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, c); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// topLineY is the baseline of text centered in the top border.
func (a *annotator) topLineY() int {
	return (a.config.Borders.Top+a.fontHeight())/2 - a.fontFace.Metrics().Descent.Round()
}

func (a *annotator) drawTitle(_ *image.RGBA, c *chart) error {
	title := c.data.Title
	if c.data.Unit != "" {
		title += " [" + c.data.Unit + "]"
	}
	if s := c.data.Session; s != nil {
		title = fmt.Sprintf("%s; session #%d %s; %s (%s)", title, s.ID, s.UUID, s.SensorName, s.Identifier)
	}

	_, err := a.context.DrawString(title, freetype.Pt(a.config.Borders.Left, a.topLineY()))
	return err
}

// drawLegend draws the series names right-aligned in the top border.
func (a *annotator) drawLegend(img *image.RGBA, c *chart) error {
	textY := a.topLineY()
	x := c.area.Max.X

	for i := len(c.data.Series) - 1; i >= 0; i-- {
		name := c.data.Series[i].Name
		x -= font.MeasureString(a.fontFace, name).Round()

		if _, err := a.context.DrawString(name, freetype.Pt(x, textY)); err != nil {
			return err
		}

		x -= legendSwatch + 4
		swatch := image.Rect(x, textY-legendSwatch, x+legendSwatch, textY)
		draw.Draw(img, swatch, image.NewUniform(c.colors[i]), image.Point{}, draw.Src)

		x -= legendSpacing
	}
	return nil
}

func (a *annotator) drawValueScale(img *image.RGBA, c *chart) error {
	descent := a.fontFace.Metrics().Descent.Round()
	fontHeight := a.fontHeight()

	for _, v := range c.valueTicks() {
		y := c.y(v)

		// Draw tick mark
		for x := c.area.Min.X - tickMarkSize; x < c.area.Min.X; x++ {
			img.SetRGBA(x, y, axisColor)
		}

		// Right-align the label against the tick mark
		label := formatValue(v, c.step)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(c.area.Min.X-tickMarkSize-3-width, y+fontHeight/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, c *chart) error {
	layout := time.TimeOnly
	if c.timeStep < time.Second {
		layout = "15:04:05.000"
	}

	textY := c.area.Max.Y + tickMarkSize + a.fontHeight()

	for _, t := range c.timeTicks() {
		x := c.x(t)

		// Draw tick mark
		for y := c.area.Max.Y; y < c.area.Max.Y+tickMarkSize; y++ {
			img.SetRGBA(x, y, axisColor)
		}

		label := t.In(a.config.Location).Format(layout)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, c *chart) error {
	var sb strings.Builder

	data := c.data
	sb.WriteString(humanize.Comma(int64(data.Len())))
	sb.WriteString(" samples; ")
	sb.WriteString(fmt.Sprintf("Frames: %s - %s; ", humanize.Comma(int64(data.FrameFirst)), humanize.Comma(int64(data.FrameLast))))
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))

	if perPixel := data.Duration() / time.Duration(c.area.Dx()); perPixel > 0 {
		sb.WriteString("; 1px = ")
		sb.WriteString(perPixel.Round(time.Microsecond).String())
	}

	if lo, hi := data.BoundsTracker.Observed(); data.BoundsTracker.Count() > 0 {
		sb.WriteString(fmt.Sprintf("; Range: %s to %s", formatValue(lo, c.step/10), formatValue(hi, c.step/10)))
	}

	// Bottom line of the bottom border
	textY := img.Bounds().Max.Y - a.fontFace.Metrics().Descent.Round() - 4

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// formatValue prints v with as many decimals as step needs.
func formatValue(v, step float64) string {
	decimals := 0
	for s := step; s < 1 && decimals < 6; s *= 10 {
		decimals++
	}
	if v == 0 {
		v = 0 // drop the sign of negative zero
	}
	return humanize.CommafWithDigits(v, decimals)
}
