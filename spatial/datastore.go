package spatial

import (
	"github.com/GrainArc/GeoPorter/models"
	"github.com/paulmach/orb"
)

// FeatureRecord 待入库的一条要素
type FeatureRecord struct {
	Properties map[string]interface{}
	Geometry   orb.Geometry
	SRS        string
}

// ExportedFeature 导出读回的一条要素
type ExportedFeature struct {
	Properties map[string]interface{}
	Geometry   orb.Geometry
}

// Datastore 空间数据存储的边界接口
// 几何构造、有效性检查、修复和聚合计算都委托给底层引擎(PostGIS)
// 事务内的所有写入要么全部提交要么全部回滚
type Datastore interface {
	RunInTransaction(fn func(tx Datastore) error) error

	CreateDataset(d *models.Dataset) error
	CreateLayer(l *models.Layer) error
	SaveDataset(d *models.Dataset) error
	SaveLayer(l *models.Layer) error
	GetDataset(uid string) (*models.Dataset, error)
	ListDatasets() ([]models.Dataset, error)
	GetLayerByDataset(datasetUID string) (*models.Layer, error)

	InsertFeatures(layerUID string, batch []FeatureRecord) error
	// LayerStats 对图层要素做一次完整聚合，返回要素数和包围盒
	LayerStats(layerUID string) (int64, models.BBox, error)
	ExportFeatures(layerUID string) ([]ExportedFeature, error)

	IsValidWKT(wktText string) (bool, error)
	RepairWKT(wktText string) (orb.Geometry, bool)
}
