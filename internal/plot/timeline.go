// Package plot renders preview images of obfuscated meal logs
package plot

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/mrcode/meal-obfuscator/internal/models"
	"github.com/mrcode/meal-obfuscator/internal/obfuscation"
)

// Lane colors
const (
	colorBackground = "#1b2636"
	colorAxis       = "#4b5563"
	colorText       = "#e5e7eb"
	colorTruth      = "#4ade80" // Green
	colorLogged     = "#facc15" // Yellow
	colorShifted    = "#ef4444" // Red
)

const (
	marginLeft   = 110
	marginRight  = 20
	marginTop    = 40
	marginBottom = 30
	maxRadius    = 9
	minRadius    = 2
)

// Timeline draws three lanes (truth, as-logged, shifted) on a shared time axis
type Timeline struct {
	Width  int
	Height int
}

// NewTimeline creates a renderer with the default size
func NewTimeline() *Timeline {
	return &Timeline{Width: 1200, Height: 260}
}

type lane struct {
	name  string
	color string
	marks func(r *models.Record) bool
}

// Render writes a PNG preview of series to w
func (t *Timeline) Render(w io.Writer, series *models.Series, res *obfuscation.Result) error {
	if series.Len() == 0 {
		return errors.Errorf("series %s is empty", series.Patient)
	}

	dc := gg.NewContext(t.Width, t.Height)
	setHex(dc, colorBackground)
	dc.Clear()

	if err := loadFont(dc, 13); err != nil {
		return err
	}

	title := series.Patient
	if res != nil {
		title = fmt.Sprintf("%s  omission=%s  timing=%s  meals %d/%d/%d",
			series.Patient, res.OmissionLabel(), res.TimingLabel(),
			res.Stats.TrueMeals, res.Stats.LoggedMeals, res.Stats.ShiftedMeals)
	}
	setHex(dc, colorText)
	dc.DrawStringAnchored(title, 10, 20, 0, 0.5)

	lanes := []lane{
		{name: "truth", color: colorTruth, marks: (*models.Record).IsMeal},
		{name: "logged", color: colorLogged, marks: (*models.Record).IsLoggedMeal},
		{name: "shifted", color: colorShifted, marks: (*models.Record).IsShiftedMeal},
	}

	start, end := series.Bounds()
	plotW := float64(t.Width - marginLeft - marginRight)
	laneH := float64(t.Height-marginTop-marginBottom) / float64(len(lanes))
	maxFood := maxFoodG(series)

	xOf := func(ts time.Time) float64 {
		span := end.Sub(start)
		if span <= 0 {
			return marginLeft + plotW/2
		}
		return marginLeft + plotW*float64(ts.Sub(start))/float64(span)
	}

	for i, l := range lanes {
		y := marginTop + laneH*(float64(i)+0.5)

		setHex(dc, colorAxis)
		dc.SetLineWidth(1)
		dc.DrawLine(marginLeft, y, marginLeft+plotW, y)
		dc.Stroke()

		setHex(dc, colorText)
		dc.DrawStringAnchored(l.name, marginLeft-10, y, 1, 0.5)

		setHex(dc, l.color)
		for j := range series.Records {
			r := &series.Records[j]
			if !l.marks(r) {
				continue
			}
			dc.DrawCircle(xOf(r.Time), y, radius(r, maxFood))
			dc.Fill()
		}
	}

	drawDayTicks(dc, start, end, xOf, float64(t.Height-marginBottom))

	return dc.EncodePNG(w)
}

// drawDayTicks marks every midnight between start and end
func drawDayTicks(dc *gg.Context, start, end time.Time, xOf func(time.Time) float64, y float64) {
	setHex(dc, colorAxis)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	if day.Before(start) {
		day = day.AddDate(0, 0, 1)
	}

	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		x := xOf(day)
		dc.DrawLine(x, y-4, x, y+4)
		dc.Stroke()
	}

	dc.SetColor(color.White)
	dc.DrawStringAnchored(start.Format("2006-01-02"), marginLeft, y+14, 0, 0.5)
	dc.DrawStringAnchored(end.Format("2006-01-02"), xOf(end), y+14, 1, 0.5)
}

// radius scales a mark by the meal size; unsized marks get the minimum radius
func radius(r *models.Record, maxFood float64) float64 {
	if !r.HasFood || maxFood <= 0 {
		return minRadius
	}
	return math.Max(minRadius, maxRadius*math.Sqrt(r.FoodG/maxFood))
}

func maxFoodG(series *models.Series) float64 {
	var m float64
	for _, i := range series.MealIndices() {
		if r := &series.Records[i]; r.HasFood && r.FoodG > m {
			m = r.FoodG
		}
	}
	return m
}

// loadFont helper to load font safely
func loadFont(dc *gg.Context, size float64) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	face := truetype.NewFace(font, &truetype.Options{Size: size})
	dc.SetFontFace(face)
	return nil
}

func setHex(dc *gg.Context, hex string) {
	r, g, b := parseHexColor(hex)
	dc.SetRGB255(int(r), int(g), int(b))
}

// parseHexColor parses a hex color string to RGB values
func parseHexColor(hex string) (r, g, b byte) {
	if len(hex) == 7 && hex[0] == '#' {
		_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	}
	return
}
