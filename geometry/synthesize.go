package geometry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GrainArc/GeoPorter/mapping"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Validator 数据存储提供的几何有效性检查与修复能力
// 修复是尽力而为的操作，返回结果值而不是异常流程
type Validator interface {
	IsValidWKT(wktText string) (bool, error)
	RepairWKT(wktText string) (orb.Geometry, bool)
}

// ErrNoGeometry 行内找不到任何可用的几何来源
var ErrNoGeometry = errors.New("no valid geometry found")

var wktPrefix = regexp.MustCompile(`(?i)^\s*(POINT|LINESTRING|POLYGON|MULTIPOINT|MULTILINESTRING|MULTIPOLYGON|GEOMETRYCOLLECTION)\s*(ZM|Z|M)?\s*\(`)

// Inputs 一行的几何原料：解码器附带的原生几何优先于映射提取的文本和坐标
type Inputs struct {
	Native  orb.Geometry
	RawText string
	Lon     *float64
	Lat     *float64
}

// FromMapping 把映射引擎的产出和解码器的原生几何合并为合成原料
func FromMapping(native orb.Geometry, gi mapping.GeometryInputs) Inputs {
	return Inputs{Native: native, RawText: gi.RawText, Lon: gi.Lon, Lat: gi.Lat}
}

// Synthesize 按优先级产出一行的几何：
// 原生几何 > WKT文本 > GeoJSON几何字面量 > 经纬度坐标对
// 失败只影响当前行，由调用方记入会话错误列表
func Synthesize(in Inputs, v Validator) (orb.Geometry, error) {
	if in.Native != nil {
		return in.Native, nil
	}

	if in.RawText != "" {
		if wktPrefix.MatchString(in.RawText) {
			return synthesizeWKT(in.RawText, v)
		}
		geom, err := geojson.UnmarshalGeometry([]byte(in.RawText))
		if err != nil {
			return nil, fmt.Errorf("几何文本无法解析: %w", err)
		}
		return geom.Geometry(), nil
	}

	if in.Lon != nil && in.Lat != nil {
		return orb.Point{*in.Lon, *in.Lat}, nil
	}

	return nil, ErrNoGeometry
}

// synthesizeWKT 校验WKT，无效时走一次修复，修复也失败才算行错误
func synthesizeWKT(text string, v Validator) (orb.Geometry, error) {
	text = strings.TrimSpace(text)
	valid, err := v.IsValidWKT(text)
	if err != nil {
		return nil, fmt.Errorf("WKT校验失败: %w", err)
	}
	if !valid {
		repaired, ok := v.RepairWKT(text)
		if !ok {
			return nil, fmt.Errorf("WKT无效且无法修复: %s", truncate(text, 64))
		}
		return repaired, nil
	}
	geom, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("WKT解析失败: %w", err)
	}
	return geom, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// KindOf 几何分类，Multi类型归并到基础类型
func KindOf(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return "point"
	case orb.LineString, orb.MultiLineString:
		return "linestring"
	case orb.Polygon, orb.MultiPolygon:
		return "polygon"
	default:
		return "mixed"
	}
}
