package Transformer

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXDecoder 电子表格解码器，读取第一个工作表，首行为字段名
type XLSXDecoder struct{}

func (d *XLSXDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	headers := records[0]
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []RawRow
	for i, record := range records[1:] {
		fields := make(map[string]interface{}, len(headers))
		for k, h := range headers {
			if h == "" {
				continue
			}
			if k < len(record) {
				fields[h] = strings.TrimSpace(record[k])
			}
		}
		rows = append(rows, RawRow{Index: i, Fields: fields})
	}

	rows, warnings := capRows(rows, opt.MaxFeatures, nil)
	return &sliceReader{rows: rows, warnings: warnings, srs: "4326"}, nil
}
