package geometry

import (
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// RegisterDrivers initializes GDAL drivers. Safe to call more than once.
func RegisterDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// GDALProvider implements Provider on top of GDAL/OGR geometries.
type GDALProvider struct{}

// NewGDALProvider returns a Provider backed by GDAL/OGR.
func NewGDALProvider() *GDALProvider {
	RegisterDrivers()
	return &GDALProvider{}
}

// gdalGeometry wraps an OGR geometry in lon/lat coordinates.
type gdalGeometry struct {
	g *godal.Geometry
}

// FromGeoJSON parses a single GeoJSON geometry object.
func (p *GDALProvider) FromGeoJSON(raw []byte) (Geometry, error) {
	g, err := godal.NewGeometryFromGeoJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}
	return &gdalGeometry{g: g}, nil
}

// AreaHectares projects g into the UTM zone of its centroid and returns its
// planar area in hectares.
func (p *GDALProvider) AreaHectares(geom Geometry) (float64, error) {
	gg, ok := geom.(*gdalGeometry)
	if !ok {
		return 0, fmt.Errorf("cannot measure %T", geom)
	}
	lon, lat := gg.Centroid()
	epsg := utmEPSG(lon, lat)

	src, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return 0, fmt.Errorf("creating lon/lat srs: %w", err)
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return 0, fmt.Errorf("creating utm srs %d: %w", epsg, err)
	}
	defer dst.Close()

	clone, err := gg.g.Clone()
	if err != nil {
		return 0, fmt.Errorf("cloning geometry: %w", err)
	}
	defer clone.Close()
	if err := clone.SetSpatialRef(src); err != nil {
		return 0, fmt.Errorf("assigning srs: %w", err)
	}
	if err := clone.Reproject(dst); err != nil {
		return 0, fmt.Errorf("reprojecting to utm %d: %w", epsg, err)
	}
	return clone.Area() / 10000, nil
}

// utmEPSG returns the EPSG code of the UTM zone containing lon/lat.
func utmEPSG(lon, lat float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	if lat >= 0 {
		return 32600 + zone
	}
	return 32700 + zone
}

func (g *gdalGeometry) Area() float64 { return g.g.Area() }

func (g *gdalGeometry) IsEmpty() bool { return g.g.Empty() }

func (g *gdalGeometry) Intersects(other Geometry) bool {
	o, ok := other.(*gdalGeometry)
	if !ok {
		return false
	}
	ok, err := g.g.Intersects(o.g)
	return err == nil && ok
}

func (g *gdalGeometry) Contains(other Geometry) bool {
	o, ok := other.(*gdalGeometry)
	if !ok {
		return false
	}
	// a contains b when b minus a leaves nothing
	diff, err := o.g.Difference(g.g)
	if err != nil {
		return false
	}
	defer diff.Close()
	return diff.Empty() || diff.Area() == 0
}

func (g *gdalGeometry) Union(other Geometry) (Geometry, error) {
	o, ok := other.(*gdalGeometry)
	if !ok {
		return nil, fmt.Errorf("cannot union with %T", other)
	}
	u, err := g.g.Union(o.g)
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	return &gdalGeometry{g: u}, nil
}

func (g *gdalGeometry) Intersection(other Geometry) (Geometry, error) {
	o, ok := other.(*gdalGeometry)
	if !ok {
		return nil, fmt.Errorf("cannot intersect with %T", other)
	}
	i, err := g.g.Intersection(o.g)
	if err != nil {
		return nil, fmt.Errorf("intersection: %w", err)
	}
	return &gdalGeometry{g: i}, nil
}

func (g *gdalGeometry) Difference(other Geometry) (Geometry, error) {
	o, ok := other.(*gdalGeometry)
	if !ok {
		return nil, fmt.Errorf("cannot subtract %T", other)
	}
	d, err := g.g.Difference(o.g)
	if err != nil {
		return nil, fmt.Errorf("difference: %w", err)
	}
	return &gdalGeometry{g: d}, nil
}

func (g *gdalGeometry) Buffer(dist float64) (Geometry, error) {
	b, err := g.g.Buffer(dist, 30)
	if err != nil {
		return nil, fmt.Errorf("buffer: %w", err)
	}
	return &gdalGeometry{g: b}, nil
}

func (g *gdalGeometry) Centroid() (lon, lat float64) {
	bounds, err := g.g.Bounds()
	if err != nil {
		return 0, 0
	}
	return (bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2
}

func (g *gdalGeometry) MarshalGeoJSON() ([]byte, error) {
	s, err := g.g.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("serializing geometry: %w", err)
	}
	return []byte(s), nil
}
