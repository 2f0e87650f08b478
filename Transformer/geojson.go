package Transformer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONDecoder 接受单个Feature或FeatureCollection，其余顶层类型报错
type GeoJSONDecoder struct{}

func (d *GeoJSONDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open geojson file: %w", err)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var features []*geojson.Feature
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature collection: %w", err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature: %w", err)
		}
		features = append(features, f)
	default:
		return nil, fmt.Errorf("unsupported geojson type: %q", head.Type)
	}

	var rows []RawRow
	for i, f := range features {
		fields := make(map[string]interface{}, len(f.Properties))
		for k, v := range f.Properties {
			fields[k] = v
		}
		rows = append(rows, RawRow{Index: i, Fields: fields, Geometry: f.Geometry})
	}

	rows, warnings := capRows(rows, opt.MaxFeatures, nil)
	return &sliceReader{rows: rows, warnings: warnings, srs: "4326"}, nil
}
