package Transformer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

type Format string

const (
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatShapefile Format = "shapefile"
	FormatGeoJSON   Format = "geojson"
	FormatKML       Format = "kml"
	FormatKMZ       Format = "kmz"
	FormatGPX       Format = "gpx"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// RawRow 解码后的一行原始数据：扁平属性包加可选的原生几何
type RawRow struct {
	Index    int
	Fields   map[string]interface{}
	Geometry orb.Geometry
}

// RowReader 逐行读取解码结果，读完返回io.EOF
type RowReader interface {
	Next() (*RawRow, error)
	// Total 已知总行数，未知时返回-1
	Total() int
	Warnings() []string
	// SRS 数据源的坐标系标记
	SRS() string
	Close() error
}

type DecodeOptions struct {
	// MaxFeatures 行数上限，0表示不限制。达到上限记截断警告，不报错
	MaxFeatures int
}

type Decoder interface {
	Decode(path string, opt DecodeOptions) (RowReader, error)
}

// DetectFormat 按扩展名和内容嗅探确定文件格式
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xls":
		return FormatXLSX, nil
	case ".shp":
		return FormatShapefile, nil
	case ".json", ".geojson":
		return FormatGeoJSON, nil
	case ".kml":
		return FormatKML, nil
	case ".kmz":
		return FormatKMZ, nil
	case ".gpx":
		return FormatGPX, nil
	case ".zip", ".rar":
		return sniffArchive(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// sniffArchive 区分shapefile压缩包和KMZ
func sniffArchive(path string) (Format, error) {
	if strings.ToLower(filepath.Ext(path)) == ".rar" {
		// rar里只可能是shapefile成果包
		return FormatShapefile, nil
	}
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()
	for _, file := range reader.File {
		switch strings.ToLower(filepath.Ext(file.Name)) {
		case ".shp":
			return FormatShapefile, nil
		case ".kml":
			return FormatKMZ, nil
		}
	}
	return "", fmt.Errorf("%w: archive contains no shp or kml", ErrUnsupportedFormat)
}

// DecoderFor 返回格式对应的解码器
func DecoderFor(format Format) (Decoder, error) {
	switch format {
	case FormatCSV:
		return &CSVDecoder{}, nil
	case FormatXLSX:
		return &XLSXDecoder{}, nil
	case FormatShapefile:
		return &ShpDecoder{}, nil
	case FormatGeoJSON:
		return &GeoJSONDecoder{}, nil
	case FormatKML:
		return &KMLDecoder{}, nil
	case FormatKMZ:
		return &KMLDecoder{KMZ: true}, nil
	case FormatGPX:
		return &GPXDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// sliceReader 把一次性解析出的行包装成RowReader
type sliceReader struct {
	rows     []RawRow
	pos      int
	warnings []string
	srs      string
}

func (r *sliceReader) Next() (*RawRow, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := &r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *sliceReader) Total() int         { return len(r.rows) }
func (r *sliceReader) Warnings() []string { return r.warnings }
func (r *sliceReader) SRS() string        { return r.srs }
func (r *sliceReader) Close() error       { return nil }

// capRows 应用行数上限，截断时追加警告
func capRows(rows []RawRow, max int, warnings []string) ([]RawRow, []string) {
	if max > 0 && len(rows) > max {
		rows = rows[:max]
		warnings = append(warnings, fmt.Sprintf("已达到要素上限%d，其余行被截断", max))
	}
	return rows, warnings
}
