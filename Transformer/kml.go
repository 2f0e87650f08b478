package Transformer

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// KMLDecoder KML/KMZ解码器，KML与GPX坐标按定义均为WGS84
type KMLDecoder struct {
	KMZ bool
}

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name      string         `xml:"name"`
	Folders   []kmlFolder    `xml:"Folder"`
	Placemark []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Name      string         `xml:"name"`
	Folders   []kmlFolder    `xml:"Folder"`
	Placemark []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	ExtendedData  kmlExtendedData   `xml:"ExtendedData"`
	Point         *kmlPoint         `xml:"Point"`
	LineString    *kmlLineString    `xml:"LineString"`
	Polygon       *kmlPolygon       `xml:"Polygon"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry"`
}

type kmlExtendedData struct {
	Data       []kmlData     `xml:"Data"`
	SchemaData kmlSchemaData `xml:"SchemaData"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlSchemaData struct {
	SimpleData []kmlSimpleData `xml:"SimpleData"`
}

type kmlSimpleData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

type kmlLineString struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	LinearRing kmlLinearRing `xml:"LinearRing"`
}

type kmlLinearRing struct {
	Coordinates string `xml:"coordinates"`
}

type kmlMultiGeometry struct {
	Points      []kmlPoint      `xml:"Point"`
	LineStrings []kmlLineString `xml:"LineString"`
	Polygons    []kmlPolygon    `xml:"Polygon"`
}

func (d *KMLDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	var data []byte
	var err error
	if d.KMZ || strings.ToLower(filepath.Ext(path)) == ".kmz" {
		data, err = readKMZ(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var root kmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse kml: %w", err)
	}

	placemarks := collectPlacemarks(root.Document.Placemark, root.Document.Folders)
	var rows []RawRow
	for _, pm := range placemarks {
		geometry := placemarkGeometry(pm)
		if geometry == nil {
			continue
		}
		fields := make(map[string]interface{})
		for _, item := range pm.ExtendedData.SchemaData.SimpleData {
			fields[item.Name] = item.Value
		}
		for _, item := range pm.ExtendedData.Data {
			fields[item.Name] = item.Value
		}
		if pm.Name != "" {
			fields["kml_name"] = pm.Name
		}
		if pm.Description != "" {
			fields["kml_description"] = pm.Description
		}
		rows = append(rows, RawRow{Index: len(rows), Fields: fields, Geometry: geometry})
	}

	rows, warnings := capRows(rows, opt.MaxFeatures, nil)
	return &sliceReader{rows: rows, warnings: warnings, srs: "4326"}, nil
}

// readKMZ 在压缩包里定位第一个KML文档，找不到算容器错误
func readKMZ(path string) ([]byte, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open kmz: %w", err)
	}
	defer reader.Close()
	for _, file := range reader.File {
		if strings.EqualFold(filepath.Ext(file.Name), ".kml") {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("open kml entry: %w", err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("kmz contains no kml document")
}

func collectPlacemarks(direct []kmlPlacemark, folders []kmlFolder) []kmlPlacemark {
	result := append([]kmlPlacemark{}, direct...)
	for _, folder := range folders {
		result = append(result, collectPlacemarks(folder.Placemark, folder.Folders)...)
	}
	return result
}

// parseKMLCoords 解析"lon,lat[,alt]"空白分隔的坐标串
func parseKMLCoords(raw string) []orb.Point {
	var coords []orb.Point
	for _, token := range strings.Fields(raw) {
		parts := strings.Split(token, ",")
		if len(parts) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(parts[0], 64)
		y, errY := strconv.ParseFloat(parts[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		coords = append(coords, orb.Point{x, y})
	}
	return coords
}

func kmlPolygonGeometry(p kmlPolygon) orb.Geometry {
	outer := parseKMLCoords(p.Outer.LinearRing.Coordinates)
	if len(outer) == 0 {
		return nil
	}
	polygon := orb.Polygon{orb.Ring(outer)}
	for _, inner := range p.Inner {
		ring := parseKMLCoords(inner.LinearRing.Coordinates)
		if len(ring) > 0 {
			polygon = append(polygon, orb.Ring(ring))
		}
	}
	return polygon
}

func placemarkGeometry(pm kmlPlacemark) orb.Geometry {
	switch {
	case pm.Point != nil:
		coords := parseKMLCoords(pm.Point.Coordinates)
		if len(coords) == 0 {
			return nil
		}
		return coords[0]
	case pm.LineString != nil:
		coords := parseKMLCoords(pm.LineString.Coordinates)
		if len(coords) < 2 {
			return nil
		}
		return orb.LineString(coords)
	case pm.Polygon != nil:
		return kmlPolygonGeometry(*pm.Polygon)
	case pm.MultiGeometry != nil:
		return multiGeometry(*pm.MultiGeometry)
	default:
		return nil
	}
}

// multiGeometry 同类成员合并为Multi几何，混合类型用集合
func multiGeometry(mg kmlMultiGeometry) orb.Geometry {
	var collection orb.Collection
	var points orb.MultiPoint
	var lines orb.MultiLineString
	var polygons orb.MultiPolygon
	for _, p := range mg.Points {
		coords := parseKMLCoords(p.Coordinates)
		if len(coords) > 0 {
			points = append(points, coords[0])
		}
	}
	for _, l := range mg.LineStrings {
		coords := parseKMLCoords(l.Coordinates)
		if len(coords) >= 2 {
			lines = append(lines, orb.LineString(coords))
		}
	}
	for _, p := range mg.Polygons {
		if geometry := kmlPolygonGeometry(p); geometry != nil {
			polygons = append(polygons, geometry.(orb.Polygon))
		}
	}

	kinds := 0
	if len(points) > 0 {
		kinds++
	}
	if len(lines) > 0 {
		kinds++
	}
	if len(polygons) > 0 {
		kinds++
	}
	switch {
	case kinds == 0:
		return nil
	case kinds > 1:
		for _, p := range points {
			collection = append(collection, p)
		}
		for _, l := range lines {
			collection = append(collection, l)
		}
		for _, p := range polygons {
			collection = append(collection, p)
		}
		return collection
	case len(points) == 1:
		return points[0]
	case len(points) > 1:
		return points
	case len(lines) == 1:
		return lines[0]
	case len(lines) > 1:
		return lines
	case len(polygons) == 1:
		return polygons[0]
	default:
		return polygons
	}
}
