package mapsvc

import (
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapblock/internal/block"
)

// TileSize is the pixel size of a web mercator tile at zoom 0.
const TileSize = 256

// maxLat is the latitude limit of the web mercator projection.
const maxLat = 85.05112878

// Frame is the server side model of a browser map: a container size and
// a viewport, with the web mercator math to fit bounds into it.
// The browser draws whatever the frame says.
type Frame struct {
	mu   sync.RWMutex
	size Size
	vp   Viewport
}

// NewFrame creates a frame of the given size.
func NewFrame(size Size, initial Viewport) *Frame {
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultSize
	}
	return &Frame{size: size, vp: clampViewport(initial)}
}

// Viewport returns the current framing.
func (f *Frame) Viewport() Viewport {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vp
}

// SetViewport moves the map.
func (f *Frame) SetViewport(vp Viewport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vp = clampViewport(vp)
}

// Size returns the container size.
func (f *Frame) Size() Size {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size
}

// Resize changes the container size without moving the center.
func (f *Frame) Resize(s Size) {
	if s.Width <= 0 || s.Height <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = s
}

// FitBounds picks the largest whole zoom at which b fits inside the
// container minus padding, and centers on b. A degenerate bound (a single
// point) only recenters. Min.Lon() > Max.Lon() frames the bound across the
// antimeridian.
func (f *Frame) FitBounds(b orb.Bound, padding int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.Min == b.Max {
		f.vp.Center = block.LatLngOf(b.Min)
		return
	}

	// Mercator y grows southward, so the north edge is the smaller y.
	x0, y0 := project(b.Min.Lon(), b.Max.Lat())
	x1, y1 := project(b.Max.Lon(), b.Min.Lat())
	if x1 < x0 {
		x1++
	}

	availW := math.Max(float64(f.size.Width-2*padding), 1)
	availH := math.Max(float64(f.size.Height-2*padding), 1)

	zoom := float64(block.MaxZoom)
	if dx := x1 - x0; dx > 0 {
		zoom = math.Min(zoom, math.Log2(availW/(dx*TileSize)))
	}
	if dy := y1 - y0; dy > 0 {
		zoom = math.Min(zoom, math.Log2(availH/(dy*TileSize)))
	}
	zoom = math.Max(math.Floor(zoom), 0)

	cx := (x0 + x1) / 2
	if cx > 1 {
		cx--
	}
	lng, lat := unproject(cx, (y0+y1)/2)
	f.vp = Viewport{Zoom: zoom, Center: block.LatLng{Lat: lat, Lng: lng}}
}

// Bound returns the visible region.
func (f *Frame) Bound() orb.Bound {
	f.mu.RLock()
	defer f.mu.RUnlock()

	scale := TileSize * math.Exp2(f.vp.Zoom)
	cx, cy := project(f.vp.Center.Lng, f.vp.Center.Lat)
	halfW := float64(f.size.Width) / 2 / scale
	halfH := float64(f.size.Height) / 2 / scale

	west, north := unproject(cx-halfW, cy-halfH)
	east, south := unproject(cx+halfW, cy+halfH)
	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}
}

// project maps lng/lat to web mercator world coordinates in [0, 1].
func project(lng, lat float64) (x, y float64) {
	lat = math.Max(math.Min(lat, maxLat), -maxLat)
	x = (lng + 180) / 360
	rad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2
	return x, y
}

// unproject is the inverse of project.
func unproject(x, y float64) (lng, lat float64) {
	lng = x*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*y))) * 180 / math.Pi
	return lng, lat
}

func clampViewport(vp Viewport) Viewport {
	vp.Zoom = math.Max(math.Min(vp.Zoom, block.MaxZoom), 0)
	vp.Center.Lat = math.Max(math.Min(vp.Center.Lat, maxLat), -maxLat)
	return vp
}

var _ Map = (*Frame)(nil)
