package Transformer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	shp "gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
)

// ShpDecoder shapefile解码器，接受.shp路径或包含shapefile的压缩包
type ShpDecoder struct{}

func (d *ShpDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	shpPath := path
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zip" || ext == ".rar" {
		dir, err := Unzip(path)
		if err != nil {
			return nil, fmt.Errorf("unpack shapefile archive: %w", err)
		}
		shpfiles := FindFiles(dir, "shp")
		if len(shpfiles) == 0 {
			return nil, fmt.Errorf("archive contains no shp file")
		}
		shpPath = shpfiles[0]
	}

	var warnings []string
	warnings = append(warnings, checkCompanionFiles(shpPath)...)

	srs, srsWarning := readPrjSRS(shpPath)
	if srsWarning != "" {
		warnings = append(warnings, srsWarning)
	}

	shape, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	encoding := readCPGEncoding(shpPath)

	var rows []RawRow
	for shape.Next() {
		n, p := shape.Shape()
		geometry := shapeToGeometry(p)
		if geometry == nil {
			continue
		}
		attrs := make(map[string]interface{}, len(fields))
		for k, f := range fields {
			attrValue := shape.ReadAttribute(n, k)
			fieldName := f.String()
			if strings.Contains(encoding, "GB") {
				fieldName = GbkToUtf8(fieldName)
				attrValue = GbkToUtf8(attrValue)
			}
			attrs[fieldName] = attrValue
		}
		rows = append(rows, RawRow{Index: n, Fields: attrs, Geometry: geometry})
	}

	rows, warnings = capRows(rows, opt.MaxFeatures, warnings)
	return &sliceReader{rows: rows, warnings: warnings, srs: srs}, nil
}

// checkCompanionFiles 检查shapefile配套文件，缺失降级为警告
func checkCompanionFiles(shpPath string) []string {
	var warnings []string
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	if _, err := os.Stat(base + ".shx"); err != nil {
		warnings = append(warnings, "缺少shx索引文件，按顺序读取记录")
	}
	if _, err := os.Stat(base + ".dbf"); err != nil {
		warnings = append(warnings, "缺少dbf属性文件，要素将不带属性")
	}
	return warnings
}

// readPrjSRS 读取投影定义并映射到坐标系标记，缺失时默认WGS84
func readPrjSRS(shpPath string) (string, string) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	content, err := os.ReadFile(base + ".prj")
	if err != nil {
		return "4326", "缺少prj投影文件，默认按WGS84处理"
	}
	srs := prjToSRS(string(content))
	if srs == "" {
		return "4326", "无法识别的投影定义，默认按WGS84处理"
	}
	return srs, ""
}

// prjToSRS 把常见的WKT投影定义映射为EPSG标记
func prjToSRS(wkt string) string {
	switch {
	case strings.Contains(wkt, "Web_Mercator"), strings.Contains(wkt, "3857"):
		return "3857"
	case strings.Contains(wkt, "CM_75E"):
		return "4521"
	case strings.Contains(wkt, "CM_81E"):
		return "4522"
	case strings.Contains(wkt, "CM_87E"):
		return "4523"
	case strings.Contains(wkt, "CM_93E"):
		return "4524"
	case strings.Contains(wkt, "CGCS2000") && strings.Contains(wkt, "3_Degree"):
		return "4544"
	case strings.Contains(wkt, "CGCS2000"), strings.Contains(wkt, "CGCS_2000"):
		return "4490"
	case strings.Contains(wkt, "WGS_1984"), strings.Contains(wkt, "WGS 84"):
		return "4326"
	default:
		return ""
	}
}

// readCPGEncoding 读取CPG文件获取字符编码，默认GBK
func readCPGEncoding(shpPath string) string {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	cpgContent, err := os.ReadFile(base + ".cpg")
	if err != nil {
		return "GBK"
	}
	return strings.TrimSpace(string(cpgContent))
}

func shapeToGeometry(p shp.Shape) orb.Geometry {
	switch s := p.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.PolyLine:
		return polyLineToGeometry(s.Points, s.Parts)
	case *shp.PolyLineZ:
		return polyLineToGeometry(s.Points, s.Parts)
	case *shp.PolyLineM:
		return polyLineToGeometry(s.Points, s.Parts)
	case *shp.Polygon:
		return polygonToGeometry(s.Points, s.Parts)
	case *shp.PolygonZ:
		return polygonToGeometry(s.Points, s.Parts)
	case *shp.PolygonM:
		return polygonToGeometry(s.Points, s.Parts)
	default:
		return nil
	}
}

// SplitPoints 按parts索引切分多部件点序列
func SplitPoints(points []shp.Point, parts []int32) [][]shp.Point {
	var result [][]shp.Point
	for i, partIndex := range parts {
		start := partIndex
		var end int32
		if i < len(parts)-1 {
			end = parts[i+1]
		} else {
			end = int32(len(points))
		}
		result = append(result, points[start:end])
	}
	return result
}

func toOrbPoints(points []shp.Point) []orb.Point {
	coords := make([]orb.Point, 0, len(points))
	for _, pt := range points {
		coords = append(coords, orb.Point{pt.X, pt.Y})
	}
	return coords
}

func polyLineToGeometry(points []shp.Point, parts []int32) orb.Geometry {
	segments := SplitPoints(points, parts)
	if len(segments) == 1 {
		return orb.LineString(toOrbPoints(segments[0]))
	}
	var multi orb.MultiLineString
	for _, seg := range segments {
		multi = append(multi, orb.LineString(toOrbPoints(seg)))
	}
	return multi
}

// IsClockwise 判断环方向，shapefile规范里顺时针为外环
func IsClockwise(points []orb.Point) bool {
	sum := 0.0
	for i := 0; i < len(points)-1; i++ {
		p1 := points[i]
		p2 := points[i+1]
		sum += (p2[0] - p1[0]) * (p2[1] + p1[1])
	}
	return sum > 0
}

func polygonToGeometry(points []shp.Point, parts []int32) orb.Geometry {
	segments := SplitPoints(points, parts)
	var polygons orb.MultiPolygon
	var current orb.Polygon
	for _, seg := range segments {
		ring := orb.Ring(toOrbPoints(seg))
		if len(ring) == 0 {
			continue
		}
		if IsClockwise(ring) || len(current) == 0 {
			// 外环开启新多边形，逆时针环作为上一个外环的洞
			if len(current) > 0 {
				polygons = append(polygons, current)
			}
			current = orb.Polygon{ring}
		} else {
			current = append(current, ring)
		}
	}
	if len(current) > 0 {
		polygons = append(polygons, current)
	}
	if len(polygons) == 1 {
		return polygons[0]
	}
	return polygons
}
