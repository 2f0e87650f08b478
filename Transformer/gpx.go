package Transformer

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"
)

// GPXDecoder 航点转为点几何，轨迹转为线几何
type GPXDecoder struct{}

func (d *GPXDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	doc, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse gpx: %w", err)
	}

	var rows []RawRow
	for _, wp := range doc.Waypoints {
		fields := map[string]interface{}{
			"gpx_type": "waypoint",
		}
		if wp.Name != "" {
			fields["name"] = wp.Name
		}
		if wp.Description != "" {
			fields["description"] = wp.Description
		}
		if wp.Elevation.NotNull() {
			fields["elevation"] = wp.Elevation.Value()
		}
		rows = append(rows, RawRow{
			Index:    len(rows),
			Fields:   fields,
			Geometry: orb.Point{wp.Longitude, wp.Latitude},
		})
	}

	for _, track := range doc.Tracks {
		geometry := trackGeometry(track)
		if geometry == nil {
			continue
		}
		fields := map[string]interface{}{
			"gpx_type": "track",
		}
		if track.Name != "" {
			fields["name"] = track.Name
		}
		if track.Description != "" {
			fields["description"] = track.Description
		}
		rows = append(rows, RawRow{Index: len(rows), Fields: fields, Geometry: geometry})
	}

	rows, warnings := capRows(rows, opt.MaxFeatures, nil)
	return &sliceReader{rows: rows, warnings: warnings, srs: "4326"}, nil
}

// trackGeometry 单段轨迹为LineString，多段为MultiLineString
func trackGeometry(track gpx.GPXTrack) orb.Geometry {
	var lines orb.MultiLineString
	for _, segment := range track.Segments {
		var line orb.LineString
		for _, pt := range segment.Points {
			line = append(line, orb.Point{pt.Longitude, pt.Latitude})
		}
		if len(line) >= 2 {
			lines = append(lines, line)
		}
	}
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return lines[0]
	default:
		return lines
	}
}
