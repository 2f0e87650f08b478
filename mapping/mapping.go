package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType 映射规则的类型标签，封闭集合
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeNumber     FieldType = "number"
	TypeDate       FieldType = "date"
	TypeCoordinate FieldType = "coordinate"
	TypeGeometry   FieldType = "geometry"
)

// FieldMapping 一条源列到目标属性的映射规则，导入开始后不再变更
type FieldMapping struct {
	Source string    `json:"source"`
	Target string    `json:"target"`
	Type   FieldType `json:"type"`
}

// GeometryInputs 送入几何合成器的原料，按映射规则从原始行提取
type GeometryInputs struct {
	RawText string
	Lon     *float64
	Lat     *float64
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"20060102",
}

// Apply 按映射规则把原始行转换为规范属性包和几何原料
// number/date转换失败静默跳过；coordinate/geometry失败作为行错误返回
func Apply(mappings []FieldMapping, fields map[string]interface{}) (map[string]interface{}, GeometryInputs, error) {
	props := make(map[string]interface{})
	var inputs GeometryInputs

	// 未提供映射时属性原样透传，几何完全依赖解码器附带的原生几何
	if len(mappings) == 0 {
		for k, v := range fields {
			props[k] = v
		}
		return props, inputs, nil
	}

	for _, m := range mappings {
		raw, ok := fields[m.Source]
		if !ok {
			continue
		}
		switch m.Type {
		case TypeString:
			props[m.Target] = toString(raw)
		case TypeNumber:
			if n, ok := toNumber(raw); ok {
				props[m.Target] = n
			}
			// 转不成数字按原始行为静默丢弃，不算行错误
		case TypeDate:
			if d, ok := toDate(raw); ok {
				props[m.Target] = d
			}
		case TypeCoordinate:
			n, ok := toNumber(raw)
			if !ok {
				return nil, GeometryInputs{}, fmt.Errorf("字段%s的坐标值无法解析: %v", m.Source, raw)
			}
			props[m.Target] = n
			if isLongitudeRole(m.Target) {
				v := n
				inputs.Lon = &v
			} else {
				v := n
				inputs.Lat = &v
			}
		case TypeGeometry:
			text := strings.TrimSpace(toString(raw))
			if text == "" {
				return nil, GeometryInputs{}, fmt.Errorf("字段%s的几何值为空", m.Source)
			}
			inputs.RawText = text
		default:
			return nil, GeometryInputs{}, fmt.Errorf("未知的映射类型: %s", m.Type)
		}
	}
	return props, inputs, nil
}

// isLongitudeRole 根据目标字段名判断经度角色，其余坐标列按纬度处理
func isLongitudeRole(target string) bool {
	switch strings.ToLower(target) {
	case "lon", "lng", "long", "longitude", "x":
		return true
	default:
		return false
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toDate(v interface{}) (string, bool) {
	text := strings.TrimSpace(toString(v))
	if text == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Format("2006-01-02 15:04:05"), true
		}
	}
	return "", false
}
