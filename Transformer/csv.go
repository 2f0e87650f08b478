package Transformer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVDecoder 分隔符文本解码器，支持逗号、制表符和分号分隔
// 只产出原始列值，不做几何合成
type CSVDecoder struct{}

type csvReader struct {
	reader   *csv.Reader
	headers  []string
	total    int
	index    int
	max      int
	warnings []string
	capHit   bool
}

func (d *CSVDecoder) Decode(path string, opt DecodeOptions) (RowReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open delimited file: %w", err)
	}
	if strings.Contains(detectEncoding(data), "GB") {
		data = []byte(GbkToUtf8(string(data)))
	}

	delim := sniffDelimiter(data)

	// 预扫一遍拿到总行数，正式读取按行推进
	counter := csv.NewReader(bytes.NewReader(data))
	counter.Comma = delim
	counter.FieldsPerRecord = -1
	total := 0
	first := true
	var headers []string
	for {
		record, err := counter.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited file: %w", err)
		}
		if first {
			headers = record
			first = false
			continue
		}
		total++
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("delimited file has no header row")
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "﻿"))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil { // 跳过表头
		return nil, fmt.Errorf("parse delimited file: %w", err)
	}

	cr := &csvReader{reader: reader, headers: headers, total: total, max: opt.MaxFeatures}
	if opt.MaxFeatures > 0 && total > opt.MaxFeatures {
		cr.total = opt.MaxFeatures
		cr.warnings = append(cr.warnings, fmt.Sprintf("已达到要素上限%d，其余行被截断", opt.MaxFeatures))
		cr.capHit = true
	}
	return cr, nil
}

func (r *csvReader) Next() (*RawRow, error) {
	if r.max > 0 && r.index >= r.max {
		return nil, io.EOF
	}
	record, err := r.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read row %d: %w", r.index+1, err)
	}
	fields := make(map[string]interface{}, len(r.headers))
	for i, h := range r.headers {
		if i < len(record) {
			fields[h] = strings.TrimSpace(record[i])
		}
	}
	row := &RawRow{Index: r.index, Fields: fields}
	r.index++
	return row, nil
}

func (r *csvReader) Total() int         { return r.total }
func (r *csvReader) Warnings() []string { return r.warnings }
func (r *csvReader) SRS() string        { return "4326" }
func (r *csvReader) Close() error       { return nil }

// sniffDelimiter 根据首行里出现最多的候选分隔符确定格式
func sniffDelimiter(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best := ','
	bestCount := strings.Count(line, ",")
	if n := strings.Count(line, "\t"); n > bestCount {
		best, bestCount = '\t', n
	}
	if n := strings.Count(line, ";"); n > bestCount {
		best = ';'
	}
	return best
}
