package raster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/minewatch/minewatch/internal/geometry"
)

const (
	memRasterDriver = godal.DriverName("MEM")
	memVectorDriver = godal.DriverName("Memory")
)

// GDALEngine implements Engine with GDAL. Grids exchanged with it carry the
// SRS as WKT (or an "EPSG:nnnn" shorthand).
type GDALEngine struct {
	provider geometry.Provider
}

// NewGDALEngine returns an Engine backed by GDAL. The provider is used to
// hand polygonized geometries back in the package's geometry model.
func NewGDALEngine(provider geometry.Provider) *GDALEngine {
	geometry.RegisterDrivers()
	return &GDALEngine{provider: provider}
}

// Read loads band 1 of the raster at path.
func (e *GDALEngine) Read(path string) (*Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer ds.Close()
	return gridFromDataset(ds)
}

// Write stores g as a single-band GeoTIFF at path.
func (e *GDALEngine) Write(path string, g *Grid) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, g.Width, g.Height)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer ds.Close()
	if err := fillDataset(ds, g); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Reproject resamples src into dstSRS with bilinear resampling.
func (e *GDALEngine) Reproject(src *Grid, dstSRS string) (*Grid, error) {
	ds, err := memDatasetFromGrid(src)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	warped, err := ds.Warp("", []string{
		"-of", "MEM",
		"-t_srs", dstSRS,
		"-r", "bilinear",
	})
	if err != nil {
		return nil, fmt.Errorf("reprojecting to %s: %w", dstSRS, err)
	}
	defer warped.Close()
	return gridFromDataset(warped)
}

// WarpTo resamples src exactly onto def with bilinear resampling.
func (e *GDALEngine) WarpTo(src *Grid, def GridDef) (*Grid, error) {
	if def.Transform[2] != 0 || def.Transform[4] != 0 {
		return nil, fmt.Errorf("target grid is not north-up")
	}
	ds, err := memDatasetFromGrid(src)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	minX, minY, maxX, maxY := def.Bounds()
	warped, err := ds.Warp("", []string{
		"-of", "MEM",
		"-t_srs", def.SRS,
		"-r", "bilinear",
		"-te", fmtF(minX), fmtF(minY), fmtF(maxX), fmtF(maxY),
		"-ts", strconv.Itoa(def.Width), strconv.Itoa(def.Height),
	})
	if err != nil {
		return nil, fmt.Errorf("warping onto target grid: %w", err)
	}
	defer warped.Close()
	g, err := gridFromDataset(warped)
	if err != nil {
		return nil, err
	}
	g.SRS = def.SRS
	return g, nil
}

// RasterizeMask burns the lon/lat geometry into a boolean mask over def.
func (e *GDALEngine) RasterizeMask(g geometry.Geometry, def GridDef) ([]bool, error) {
	geom, err := godalGeometryIn(g, def.SRS)
	if err != nil {
		return nil, err
	}
	defer geom.Close()

	ds, err := emptyMemDataset(def, godal.Byte)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	if err := ds.RasterizeGeometry(geom, godal.Values(1)); err != nil {
		return nil, fmt.Errorf("rasterizing geometry: %w", err)
	}

	buf := make([]float64, def.Width*def.Height)
	if err := ds.Bands()[0].Read(0, 0, buf, def.Width, def.Height); err != nil {
		return nil, fmt.Errorf("reading mask: %w", err)
	}
	mask := make([]bool, len(buf))
	for i, v := range buf {
		mask[i] = v != 0
	}
	return mask, nil
}

// Polygonize traces the true regions of mask into lon/lat geometries.
func (e *GDALEngine) Polygonize(mask []bool, def GridDef) ([]geometry.Geometry, error) {
	if len(mask) != def.Width*def.Height {
		return nil, fmt.Errorf("mask size %d does not match grid %dx%d", len(mask), def.Width, def.Height)
	}
	ds, err := emptyMemDataset(def, godal.Byte)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	buf := make([]float64, len(mask))
	for i, on := range mask {
		if on {
			buf[i] = 1
		}
	}
	band := ds.Bands()[0]
	if err := band.Write(0, 0, buf, def.Width, def.Height); err != nil {
		return nil, fmt.Errorf("writing mask: %w", err)
	}

	vec, err := godal.CreateVector(memVectorDriver, "")
	if err != nil {
		return nil, fmt.Errorf("creating vector scratch: %w", err)
	}
	defer vec.Close()
	srs, err := parseSRS(def.SRS)
	if err != nil {
		return nil, err
	}
	defer srs.Close()
	layer, err := vec.CreateLayer("zones", srs, godal.GTPolygon)
	if err != nil {
		return nil, fmt.Errorf("creating layer: %w", err)
	}
	// The band doubles as its own mask so zero pixels produce no features.
	if err := band.Polygonize(layer, godal.Mask(band)); err != nil {
		return nil, fmt.Errorf("polygonizing: %w", err)
	}

	lonlat, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("creating lon/lat srs: %w", err)
	}
	defer lonlat.Close()

	var out []geometry.Geometry
	layer.ResetReading()
	for {
		f := layer.NextFeature()
		if f == nil {
			break
		}
		geom := f.Geometry()
		if geom == nil || geom.Empty() {
			f.Close()
			continue
		}
		if err := geom.Reproject(lonlat); err != nil {
			f.Close()
			return nil, fmt.Errorf("reprojecting zone: %w", err)
		}
		js, err := geom.GeoJSON()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("serializing zone: %w", err)
		}
		f.Close()
		g, err := e.provider.FromGeoJSON([]byte(js))
		if err != nil {
			return nil, fmt.Errorf("rebuilding zone geometry: %w", err)
		}
		out = append(out, g)
	}
	return out, nil
}

// godalGeometryIn converts g (lon/lat) into an OGR geometry expressed in srsSpec.
func godalGeometryIn(g geometry.Geometry, srsSpec string) (*godal.Geometry, error) {
	raw, err := g.MarshalGeoJSON()
	if err != nil {
		return nil, fmt.Errorf("serializing geometry: %w", err)
	}
	geom, err := godal.NewGeometryFromGeoJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}
	lonlat, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		geom.Close()
		return nil, fmt.Errorf("creating lon/lat srs: %w", err)
	}
	defer lonlat.Close()
	if err := geom.SetSpatialRef(lonlat); err != nil {
		geom.Close()
		return nil, fmt.Errorf("assigning srs: %w", err)
	}
	dst, err := parseSRS(srsSpec)
	if err != nil {
		geom.Close()
		return nil, err
	}
	defer dst.Close()
	if !lonlat.IsSame(dst) {
		if err := geom.Reproject(dst); err != nil {
			geom.Close()
			return nil, fmt.Errorf("reprojecting geometry: %w", err)
		}
	}
	return geom, nil
}

// parseSRS accepts "EPSG:nnnn" or WKT.
func parseSRS(spec string) (*godal.SpatialRef, error) {
	spec = strings.TrimSpace(spec)
	if code, ok := strings.CutPrefix(strings.ToUpper(spec), "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("invalid EPSG code %q", spec)
		}
		return godal.NewSpatialRefFromEPSG(n)
	}
	return godal.NewSpatialRefFromWKT(spec)
}

func memDatasetFromGrid(g *Grid) (*godal.Dataset, error) {
	ds, err := emptyMemDataset(g.GridDef, godal.Float64)
	if err != nil {
		return nil, err
	}
	if err := fillDataset(ds, g); err != nil {
		ds.Close()
		return nil, err
	}
	return ds, nil
}

func emptyMemDataset(def GridDef, dt godal.DataType) (*godal.Dataset, error) {
	ds, err := godal.Create(memRasterDriver, "", 1, dt, def.Width, def.Height)
	if err != nil {
		return nil, fmt.Errorf("creating scratch raster: %w", err)
	}
	if err := ds.SetGeoTransform(def.Transform); err != nil {
		ds.Close()
		return nil, fmt.Errorf("setting geotransform: %w", err)
	}
	srs, err := parseSRS(def.SRS)
	if err != nil {
		ds.Close()
		return nil, err
	}
	defer srs.Close()
	if err := ds.SetSpatialRef(srs); err != nil {
		ds.Close()
		return nil, fmt.Errorf("setting srs: %w", err)
	}
	return ds, nil
}

func fillDataset(ds *godal.Dataset, g *Grid) error {
	if err := ds.SetGeoTransform(g.Transform); err != nil {
		return fmt.Errorf("setting geotransform: %w", err)
	}
	srs, err := parseSRS(g.SRS)
	if err != nil {
		return err
	}
	defer srs.Close()
	if err := ds.SetSpatialRef(srs); err != nil {
		return fmt.Errorf("setting srs: %w", err)
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(g.NoData); err != nil {
		return fmt.Errorf("setting nodata: %w", err)
	}
	if err := band.Write(0, 0, g.Data, g.Width, g.Height); err != nil {
		return fmt.Errorf("writing band: %w", err)
	}
	return nil
}

func gridFromDataset(ds *godal.Dataset) (*Grid, error) {
	st := ds.Structure()
	def := GridDef{Width: st.SizeX, Height: st.SizeY}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("reading geotransform: %w", err)
	}
	def.Transform = gt
	def.SRS = ds.Projection()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("dataset has no bands")
	}
	band := bands[0]
	data := make([]float64, def.Width*def.Height)
	if err := band.Read(0, 0, data, def.Width, def.Height); err != nil {
		return nil, fmt.Errorf("reading band: %w", err)
	}
	g := &Grid{GridDef: def, Data: data}
	if nd, ok := band.NoData(); ok {
		g.NoData = nd
	}
	return g, nil
}

func fmtF(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
