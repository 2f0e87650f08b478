package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/GrainArc/GeoPorter/Transformer"
	"github.com/GrainArc/GeoPorter/geometry"
	"github.com/GrainArc/GeoPorter/mapping"
	"github.com/GrainArc/GeoPorter/models"
	"github.com/GrainArc/GeoPorter/spatial"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const defaultBatchSize = 100

// 推断几何分类时采样的几何数量
const kindSampleSize = 10

// Options 一次导入的调用方参数
type Options struct {
	DatasetName string
	Description string
	Mappings    []mapping.FieldMapping
	BatchSize   int
	SRS         string
	OnProgress  func(Progress)
}

// Progress 每个批次提交后上报一次
type Progress struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
	Percentage int `json:"percentage"`
}

// ImportResult 导入结果，行级错误随结果返回而不是中断导入
type ImportResult struct {
	Success          bool       `json:"success"`
	SessionUID       string     `json:"session_uid"`
	DatasetUID       string     `json:"dataset_uid,omitempty"`
	LayerUID         string     `json:"layer_uid,omitempty"`
	FeaturesImported int        `json:"features_imported"`
	Errors           []RowError `json:"errors"`
	Warnings         []string   `json:"warnings"`
}

// Importer 导入编排器，一次会话由一个编排器实例从头到尾处理
// 批次在会话内顺序提交，会话记录是唯一共享可变状态且只由编排器写
type Importer struct {
	Store    spatial.Datastore
	Sessions SessionStore
}

func New(store spatial.Datastore, sessions SessionStore) *Importer {
	return &Importer{Store: store, Sessions: sessions}
}

// ImportData 执行一次完整导入：
// 建会话 → 建数据集/图层 → 逐批映射+几何合成+入库 → 聚合收尾
// 数据写入在一个事务内全部提交或全部回滚；会话进度走侧库，事务外可见
func (im *Importer) ImportData(rows Transformer.RowReader, format Transformer.Format, filename string, opts Options) (*ImportResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	srs := opts.SRS
	if srs == "" {
		srs = rows.SRS()
	}
	if srs == "" {
		srs = "4326"
	}

	mappingSnapshot, _ := json.Marshal(opts.Mappings)
	total := rows.Total()
	session := &models.ImportSession{
		UID:       uuid.New().String(),
		Filename:  filename,
		FileType:  string(format),
		Status:    models.SessionPending,
		TotalRows: max(total, 0),
		Mapping:   datatypes.JSON(mappingSnapshot),
		StartedAt: time.Now(),
	}
	if err := im.Sessions.Create(session); err != nil {
		return nil, fmt.Errorf("create import session: %w", err)
	}
	if err := im.Sessions.MarkProcessing(session.UID); err != nil {
		return nil, err
	}

	result := &ImportResult{SessionUID: session.UID}
	var rowErrors []RowError
	processed := 0
	imported := 0

	txErr := im.Store.RunInTransaction(func(tx spatial.Datastore) error {
		batch, rawCount, err := im.readBatch(rows, tx, srs, opts.Mappings, batchSize, &rowErrors)
		if err != nil {
			return err
		}

		dataset := &models.Dataset{
			UID:          uuid.New().String(),
			Name:         opts.DatasetName,
			Description:  opts.Description,
			GeometryKind: inferGeometryKind(opts.Mappings, batch),
			SourceFormat: string(format),
			SourceFile:   filename,
			SRS:          srs,
			Metadata:     datatypes.JSON([]byte(`{}`)),
		}
		if err := tx.CreateDataset(dataset); err != nil {
			return fmt.Errorf("create dataset: %w", err)
		}
		layer := &models.Layer{
			UID:          uuid.New().String(),
			DatasetUID:   dataset.UID,
			Name:         opts.DatasetName,
			GeometryKind: dataset.GeometryKind,
			Visible:      true,
			MaxZoom:      22,
		}
		if err := tx.CreateLayer(layer); err != nil {
			return fmt.Errorf("create layer: %w", err)
		}
		if err := im.Sessions.AttachDataset(session.UID, dataset.UID); err != nil {
			log.Printf("关联会话数据集失败: %v", err)
		}
		result.DatasetUID = dataset.UID
		result.LayerUID = layer.UID

		for rawCount > 0 {
			if len(batch) > 0 {
				if err := tx.InsertFeatures(layer.UID, batch); err != nil {
					return fmt.Errorf("insert batch: %w", err)
				}
				imported += len(batch)
			}
			processed += rawCount
			im.reportProgress(session.UID, total, processed, len(rowErrors), rowErrors, opts.OnProgress)

			batch, rawCount, err = im.readBatch(rows, tx, srs, opts.Mappings, batchSize, &rowErrors)
			if err != nil {
				return err
			}
		}

		// 收尾聚合：从已写入的要素整体重算，不做增量算术
		count, bbox, err := tx.LayerStats(layer.UID)
		if err != nil {
			return err
		}
		dataset.FeatureCount = count
		layer.FeatureCount = count
		if count > 0 {
			dataset.Bounds = bbox.ToJSON()
		}
		if err := tx.SaveDataset(dataset); err != nil {
			return fmt.Errorf("finalize dataset: %w", err)
		}
		if err := tx.SaveLayer(layer); err != nil {
			return fmt.Errorf("finalize layer: %w", err)
		}
		return nil
	})

	if total < 0 {
		if err := im.Sessions.SetTotal(session.UID, processed); err != nil {
			log.Printf("修正会话总行数失败: %v", err)
		}
	}

	if txErr != nil {
		if err := im.Sessions.Finalize(session.UID, models.SessionFailed, txErr.Error()); err != nil {
			log.Printf("会话标记失败态出错: %v", err)
		}
		return nil, txErr
	}

	if err := im.Sessions.Finalize(session.UID, models.SessionCompleted, ""); err != nil {
		log.Printf("会话标记完成态出错: %v", err)
	}

	result.Success = true
	result.FeaturesImported = imported
	result.Errors = rowErrors
	result.Warnings = rows.Warnings()
	return result, nil
}

// readBatch 读取并转换一个批次
// 返回可入库的要素和本批原始行数；行级失败记入errs并跳过该行
func (im *Importer) readBatch(rows Transformer.RowReader, v geometry.Validator, srs string, mappings []mapping.FieldMapping, batchSize int, errs *[]RowError) ([]spatial.FeatureRecord, int, error) {
	var batch []spatial.FeatureRecord
	rawCount := 0
	for rawCount < batchSize {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read source row: %w", err)
		}
		rawCount++

		props, gi, err := mapping.Apply(mappings, row.Fields)
		if err != nil {
			*errs = append(*errs, RowError{Row: row.Index + 1, Error: err.Error(), Data: row.Fields})
			continue
		}
		geom, err := geometry.Synthesize(geometry.FromMapping(row.Geometry, gi), v)
		if err != nil {
			*errs = append(*errs, RowError{Row: row.Index + 1, Error: err.Error(), Data: row.Fields})
			continue
		}
		batch = append(batch, spatial.FeatureRecord{Properties: props, Geometry: geom, SRS: srs})
	}
	return batch, rawCount, nil
}

// reportProgress 批次落库后更新会话并回调
func (im *Importer) reportProgress(sessionUID string, total int, processed int, errCount int, errs []RowError, cb func(Progress)) {
	if err := im.Sessions.UpdateProgress(sessionUID, processed, errCount, errs); err != nil {
		log.Printf("更新会话进度失败: %v", err)
	}
	if cb == nil {
		return
	}
	// 总数未知时用已处理数顶替，保证百分比单调不降
	reportTotal := total
	if reportTotal < processed {
		reportTotal = processed
	}
	percentage := 0
	if reportTotal > 0 {
		percentage = processed * 100 / reportTotal
	}
	if percentage > 100 {
		percentage = 100
	}
	cb(Progress{Total: reportTotal, Processed: processed, Errors: errCount, Percentage: percentage})
}

// inferGeometryKind 推断数据集几何分类
// 有坐标映射且无几何映射时必为点；否则从首批几何采样，类型不一致记为mixed
func inferGeometryKind(mappings []mapping.FieldMapping, batch []spatial.FeatureRecord) string {
	hasCoordinate := false
	hasGeometry := false
	for _, m := range mappings {
		switch m.Type {
		case mapping.TypeCoordinate:
			hasCoordinate = true
		case mapping.TypeGeometry:
			hasGeometry = true
		}
	}
	if hasCoordinate && !hasGeometry {
		return models.GeomKindPoint
	}

	kind := ""
	for i, f := range batch {
		if i >= kindSampleSize {
			break
		}
		k := geometry.KindOf(f.Geometry)
		if kind == "" {
			kind = k
		} else if kind != k {
			return models.GeomKindMixed
		}
	}
	if kind == "" {
		return models.GeomKindMixed
	}
	return kind
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
