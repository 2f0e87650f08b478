package spatial

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/GrainArc/GeoPorter/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PGStore PostGIS实现，几何经WKB十六进制写入，空间计算走原生SQL
type PGStore struct {
	DB *gorm.DB
}

func NewPGStore(db *gorm.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) RunInTransaction(fn func(tx Datastore) error) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&PGStore{DB: tx})
	})
}

func (s *PGStore) CreateDataset(d *models.Dataset) error {
	return s.DB.Create(d).Error
}

func (s *PGStore) CreateLayer(l *models.Layer) error {
	return s.DB.Create(l).Error
}

func (s *PGStore) SaveDataset(d *models.Dataset) error {
	return s.DB.Save(d).Error
}

func (s *PGStore) SaveLayer(l *models.Layer) error {
	return s.DB.Save(l).Error
}

func (s *PGStore) GetDataset(uid string) (*models.Dataset, error) {
	var d models.Dataset
	if err := s.DB.Where("uid = ?", uid).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) ListDatasets() ([]models.Dataset, error) {
	var list []models.Dataset
	err := s.DB.Order("created_at desc").Find(&list).Error
	return list, err
}

func (s *PGStore) GetLayerByDataset(datasetUID string) (*models.Layer, error) {
	var l models.Layer
	if err := s.DB.Where("dataset_uid = ?", datasetUID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertFeatures 批量写入要素，几何列用ST_GeomFromWKB构造
// 非4326坐标系在入库时由PostGIS转换到4326
func (s *PGStore) InsertFeatures(layerUID string, batch []FeatureRecord) error {
	for _, f := range batch {
		data, err := wkb.Marshal(f.Geometry)
		if err != nil {
			return fmt.Errorf("encode geometry: %w", err)
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("encode properties: %w", err)
		}
		hexWKB := hex.EncodeToString(data)
		srid := f.SRS
		if srid == "" {
			srid = "4326"
		}

		var geomExpr clause.Expr
		if srid == "4326" {
			geomExpr = clause.Expr{
				SQL:  "ST_SetSRID(ST_GeomFromWKB(decode(?, 'hex')), 4326)",
				Vars: []interface{}{hexWKB},
			}
		} else {
			geomExpr = clause.Expr{
				SQL:  "ST_Transform(ST_SetSRID(ST_GeomFromWKB(decode(?, 'hex')), ?::int), 4326)",
				Vars: []interface{}{hexWKB, srid},
			}
		}

		record := map[string]interface{}{
			"layer_uid":  layerUID,
			"properties": datatypes.JSON(props),
			"geom":       geomExpr,
		}
		if err := s.DB.Table("feature").Create(record).Error; err != nil {
			return fmt.Errorf("insert feature: %w", err)
		}
	}
	return nil
}

// LayerStats 聚合图层要素数与包围盒，每次从要素表重算而不是增量累加
func (s *PGStore) LayerStats(layerUID string) (int64, models.BBox, error) {
	var result struct {
		Count int64
		MinX  *float64
		MinY  *float64
		MaxX  *float64
		MaxY  *float64
	}
	sql := `
		SELECT COUNT(*) AS count,
		       ST_XMin(ST_Extent(geom)) AS min_x,
		       ST_YMin(ST_Extent(geom)) AS min_y,
		       ST_XMax(ST_Extent(geom)) AS max_x,
		       ST_YMax(ST_Extent(geom)) AS max_y
		FROM feature WHERE layer_uid = ?
	`
	if err := s.DB.Raw(sql, layerUID).Scan(&result).Error; err != nil {
		return 0, models.BBox{}, fmt.Errorf("aggregate layer stats: %w", err)
	}
	bbox := models.BBox{}
	if result.MinX != nil {
		bbox = models.BBox{MinX: *result.MinX, MinY: *result.MinY, MaxX: *result.MaxX, MaxY: *result.MaxY}
	}
	return result.Count, bbox, nil
}

func (s *PGStore) ExportFeatures(layerUID string) ([]ExportedFeature, error) {
	var records []struct {
		Properties datatypes.JSON
		Geom       string
	}
	sql := `SELECT properties, ST_AsGeoJSON(geom) AS geom FROM feature WHERE layer_uid = ? ORDER BY id`
	if err := s.DB.Raw(sql, layerUID).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("read layer features: %w", err)
	}
	var features []ExportedFeature
	for _, r := range records {
		props := make(map[string]interface{})
		if len(r.Properties) > 0 {
			if err := json.Unmarshal(r.Properties, &props); err != nil {
				log.Printf("属性解析失败，跳过: %v", err)
				continue
			}
		}
		geom, err := geojson.UnmarshalGeometry([]byte(r.Geom))
		if err != nil {
			log.Printf("几何解析失败，跳过: %v", err)
			continue
		}
		features = append(features, ExportedFeature{Properties: props, Geometry: geom.Geometry()})
	}
	return features, nil
}

func (s *PGStore) IsValidWKT(wktText string) (bool, error) {
	var valid bool
	if err := s.DB.Raw(`SELECT ST_IsValid(ST_GeometryFromText(?))`, wktText).Scan(&valid).Error; err != nil {
		return false, fmt.Errorf("validity check: %w", err)
	}
	return valid, nil
}

// RepairWKT 尽力修复，失败返回ok=false而不是错误
func (s *PGStore) RepairWKT(wktText string) (orb.Geometry, bool) {
	var data []byte
	if err := s.DB.Raw(`SELECT ST_AsBinary(ST_MakeValid(ST_GeometryFromText(?)))`, wktText).Scan(&data).Error; err != nil {
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, false
	}
	return geom, true
}
