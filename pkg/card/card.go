// Package card renders the stats card image sent by /mystats.
package card

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/jpeg"

	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/ranks"
	"github.com/spf13/afero"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// ErrMissingAsset is returned when the background or the font is absent
var ErrMissingAsset = errors.New("card asset missing")

// MaxLineupRows is the number of lineup names drawn on a card
const MaxLineupRows = 6

const (
	cardWidth  = 1920
	cardHeight = 1080

	badgeHeight = 55
	// badge rows are 50px tall text lines; the 55px badge sits centred on them
	badgeOffsetY = -3
)

var (
	white     = color.RGBA{0xff, 0xff, 0xff, 0xff}
	black     = color.RGBA{0x00, 0x00, 0x00, 0xff}
	yellow    = color.RGBA{0xff, 0xff, 0x00, 0xff}
	gray      = color.RGBA{0x80, 0x80, 0x80, 0xff}
	dimGray   = color.RGBA{0x69, 0x69, 0x69, 0xff}
	orange    = color.RGBA{0xff, 0xa5, 0x00, 0xff}
	cyan      = color.RGBA{0x00, 0xff, 0xff, 0xff}
	auraRanks = map[string]bool{"SSS+": true}
)

// CardData is everything drawn on one card
type CardData struct {
	Username    string
	DisplayName string
	ServerName  string
	Opponent    string
	WarTime     string
	Lineup      []string
	Stats       []ranks.Stat
	Avatar      []byte
}

// Renderer draws cards from the assets in one directory
type Renderer struct {
	fs      afero.Fs
	dir     string
	catalog *config.Catalog
	logger  *logger.Logger
}

// NewRenderer creates a renderer reading bg.png, font.ttf and Rank<R>.png from dir
func NewRenderer(fs afero.Fs, dir string, catalog *config.Catalog) *Renderer {
	return &Renderer{
		fs:      fs,
		dir:     dir,
		catalog: catalog,
		logger:  logger.New("card"),
	}
}

type faces struct {
	name    font.Face
	label   font.Face
	rank    font.Face
	header  font.Face
	warTime font.Face
	lineup  font.Face
}

// Render draws a card and returns it PNG encoded
func (r *Renderer) Render(data CardData) ([]byte, error) {
	bg, err := r.loadImage("bg.png")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: bg.png", ErrMissingAsset)
		}
		return nil, fmt.Errorf("failed to load background: %w", err)
	}
	fontData, err := afero.ReadFile(r.fs, filepath.Join(r.dir, "font.ttf"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: font.ttf", ErrMissingAsset)
		}
		return nil, fmt.Errorf("failed to read font: %w", err)
	}
	f := r.loadFaces(fontData)

	canvas := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	xdraw.BiLinear.Scale(canvas, canvas.Bounds(), bg, bg.Bounds(), xdraw.Src, nil)

	drawShadowed(canvas, 1000, 200, data.Username, f.name, white)
	drawShadowed(canvas, 1000, 280, data.DisplayName, f.name, yellow)

	if len(data.Avatar) == 0 {
		drawShadowed(canvas, 180, 200, "(No Avatar)", f.label, gray)
	} else if avatar, _, err := image.Decode(bytes.NewReader(data.Avatar)); err != nil {
		r.logger.Debug("Skipping undecodable avatar: %v", err)
	} else {
		xdraw.BiLinear.Scale(canvas, image.Rect(160, 90, 560, 420), avatar, avatar.Bounds(), xdraw.Over, nil)
	}

	opponent := data.Opponent
	if opponent == "" {
		opponent = "???"
	}
	warTime := data.WarTime
	if warTime == "" {
		warTime = "TBD"
	}
	drawShadowed(canvas, 130, 460, fmt.Sprintf("# %s VS %s", data.ServerName, opponent), f.header, orange)
	drawShadowed(canvas, 130, 520, "Time: "+warTime, f.warTime, white)
	drawShadowed(canvas, 130, 620, "- Lineup:", f.lineup, cyan)
	for i, name := range data.Lineup {
		if i >= MaxLineupRows {
			break
		}
		drawShadowed(canvas, 150, 665+i*45, "- "+name, f.lineup, white)
	}

	const statsX, statsY, rowGap = 880, 500, 90
	for i, stat := range data.Stats {
		y := statsY + i*rowGap
		drawShadowed(canvas, statsX, y, stat.Name+":", f.label, white)

		if badge, err := r.loadImage("Rank" + stat.Rank + ".png"); err == nil {
			b := badge.Bounds()
			w := b.Dx() * badgeHeight / max(b.Dy(), 1)
			xdraw.BiLinear.Scale(canvas, image.Rect(1180, y+badgeOffsetY, 1180+w, y+badgeOffsetY+badgeHeight), badge, b, xdraw.Over, nil)
		} else {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Debug("Skipping badge of rank %s: %v", stat.Rank, err)
			}
			drawShadowed(canvas, 1180, y, "(No Img)", f.label, gray)
		}

		if auraRanks[stat.Rank] {
			drawAura(canvas, 1590, y, stat.Rank, f.rank)
		} else {
			drawShadowed(canvas, 1590, y, stat.Rank, f.rank, parseHexColor(r.catalog.Color(stat.Rank)))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) loadImage(name string) (image.Image, error) {
	file, err := r.fs.Open(filepath.Join(r.dir, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// loadFaces falls back to the built-in bitmap face when the font cannot be parsed
func (r *Renderer) loadFaces(data []byte) faces {
	parsed, err := opentype.Parse(data)
	if err != nil {
		r.logger.Warn("Unusable font.ttf, using fallback face: %v", err)
		return faces{
			name:    basicfont.Face7x13,
			label:   basicfont.Face7x13,
			rank:    basicfont.Face7x13,
			header:  basicfont.Face7x13,
			warTime: basicfont.Face7x13,
			lineup:  basicfont.Face7x13,
		}
	}
	return faces{
		name:    newFace(parsed, 50),
		label:   newFace(parsed, 40),
		rank:    newFace(parsed, 45),
		header:  newFace(parsed, 45),
		warTime: newFace(parsed, 35),
		lineup:  newFace(parsed, 35),
	}
}

func newFace(f *sfnt.Font, size float64) font.Face {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// drawText places text with its top-left corner at (x, y)
func drawText(dst *image.RGBA, x, y int, text string, face font.Face, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func drawShadowed(dst *image.RGBA, x, y int, text string, face font.Face, c color.Color) {
	drawText(dst, x+2, y+2, text, face, black)
	drawText(dst, x, y, text, face, c)
}

func drawAura(dst *image.RGBA, x, y int, text string, face font.Face) {
	for dx := -4; dx <= 4; dx += 2 {
		for dy := -4; dy <= 4; dy += 2 {
			drawText(dst, x+dx, y+dy, text, face, dimGray)
		}
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				drawText(dst, x+dx, y+dy, text, face, white)
			}
		}
	}
	drawText(dst, x, y, text, face, black)
}

// parseHexColor parses #RRGGBB, returning white for anything else
func parseHexColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return white
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return white
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
