package views

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/GrainArc/GeoPorter/Transformer"
	"github.com/GrainArc/GeoPorter/config"
	"github.com/GrainArc/GeoPorter/importer"
	"github.com/GrainArc/GeoPorter/mapping"
	"github.com/GrainArc/GeoPorter/models"
	"github.com/GrainArc/GeoPorter/spatial"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

type UserController struct{}

func newImporter() *importer.Importer {
	return importer.New(spatial.NewPGStore(models.DB), importer.NewSessionStore(models.SessionDB))
}

// UploadAndImport 接收上传文件和字段映射，执行一次完整导入
// 表单字段: file, dataset_name, description, mapping(JSON数组), batch_size, srs
func (uc *UserController) UploadAndImport(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}
	datasetName := c.PostForm("dataset_name")
	if datasetName == "" {
		datasetName = file.Filename
	}

	var mappings []mapping.FieldMapping
	if raw := c.PostForm("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("字段映射解析失败: %v", err)})
			return
		}
	}
	batchSize, _ := strconv.Atoi(c.PostForm("batch_size"))
	maxFeatures, _ := strconv.Atoi(c.PostForm("max_features"))

	if err := os.MkdirAll(config.Download, os.ModePerm); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path := filepath.Join(config.Download, uuid.New().String()+"_"+file.Filename)
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("保存文件失败: %v", err)})
		return
	}

	format, err := Transformer.DetectFormat(path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	decoder, err := Transformer.DecoderFor(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := decoder.Decode(path, Transformer.DecodeOptions{MaxFeatures: maxFeatures})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer rows.Close()

	result, err := newImporter().ImportData(rows, format, file.Filename, importer.Options{
		DatasetName: datasetName,
		Description: c.PostForm("description"),
		Mappings:    mappings,
		BatchSize:   batchSize,
		SRS:         c.PostForm("srs"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportProgress 进度轮询，返回会话快照
func (uc *UserController) ImportProgress(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少会话uid"})
		return
	}
	session, err := importer.NewSessionStore(models.SessionDB).Get(uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	percentage := 0
	if session.TotalRows > 0 {
		percentage = session.ProcessedRows * 100 / session.TotalRows
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":            session.UID,
		"dataset_uid":    session.DatasetUID,
		"filename":       session.Filename,
		"file_type":      session.FileType,
		"status":         session.Status,
		"total_rows":     session.TotalRows,
		"processed_rows": session.ProcessedRows,
		"error_count":    session.ErrorCount,
		"errors":         session.Errors,
		"fail_reason":    session.FailReason,
		"percentage":     percentage,
	})
}

// GetDatasets 数据集列表
func (uc *UserController) GetDatasets(c *gin.Context) {
	list, err := spatial.NewPGStore(models.DB).ListDatasets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// ExportDataset 把数据集要素导出为GeoJSON FeatureCollection
func (uc *UserController) ExportDataset(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少数据集uid"})
		return
	}
	store := spatial.NewPGStore(models.DB)
	dataset, err := store.GetDataset(uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "数据集不存在"})
		return
	}
	layer, err := store.GetLayerByDataset(uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "图层不存在"})
		return
	}
	features, err := store.ExportFeatures(layer.UID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		feature := geojson.NewFeature(f.Geometry)
		feature.Properties = f.Properties
		fc.Append(feature)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.geojson"`, dataset.Name))
	c.Data(http.StatusOK, "application/geo+json", data)
}
