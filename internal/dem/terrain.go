package dem

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Encoding identifies how elevation is packed into terrain-RGB pixels.
type Encoding string

const (
	// Terrarium encodes elevation = (r*256 + g + b/256) - 32768.
	Terrarium Encoding = "terrarium"
	// MapboxGL encodes elevation = (r*65536 + g*256 + b)/10 - 10000.
	MapboxGL Encoding = "mapbox"
)

// DecodeTerrainRGB decodes a terrain-RGB PNG tile into a dense elevation
// grid. Fully transparent pixels decode to NaN.
func DecodeTerrainRGB(data []byte, enc Encoding) (*DenseGrid, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode terrain png: %w", err)
	}
	b := img.Bounds()
	grid := NewDenseGrid(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue // stays NaN
			}
			// RGBA returns 16-bit channels; terrain encodings are 8-bit.
			r8, g8, b8 := float64(r>>8), float64(g>>8), float64(bl>>8)
			var elev float64
			switch enc {
			case MapboxGL:
				elev = (r8*65536+g8*256+b8)/10 - 10000
			case Terrarium:
				elev = (r8*256 + g8 + b8/256) - 32768
			default:
				return nil, fmt.Errorf("unknown terrain encoding %q", enc)
			}
			grid.Set(x-b.Min.X, y-b.Min.Y, elev)
		}
	}
	return grid, nil
}

// EncodeTerrainRGB packs a grid back into a terrain-RGB PNG. NaN cells become
// fully transparent pixels. Used by tests and fixture generation.
func EncodeTerrainRGB(g Grid, enc Encoding) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width(), g.Height()))
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			elev := g.Sample(x, y)
			if elev != elev { // NaN
				continue
			}
			i := img.PixOffset(x, y)
			switch enc {
			case MapboxGL:
				v := int((elev + 10000) * 10)
				img.Pix[i+0] = uint8(v >> 16)
				img.Pix[i+1] = uint8(v >> 8)
				img.Pix[i+2] = uint8(v)
			case Terrarium:
				v := elev + 32768
				whole := int(v)
				img.Pix[i+0] = uint8(whole >> 8)
				img.Pix[i+1] = uint8(whole)
				img.Pix[i+2] = uint8((v - float64(whole)) * 256)
			default:
				return nil, fmt.Errorf("unknown terrain encoding %q", enc)
			}
			img.Pix[i+3] = 0xff
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode terrain png: %w", err)
	}
	return buf.Bytes(), nil
}
