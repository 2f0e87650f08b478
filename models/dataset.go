package models

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"gorm.io/datatypes"
)

// 几何分类
const (
	GeomKindPoint      = "point"
	GeomKindLineString = "linestring"
	GeomKindPolygon    = "polygon"
	GeomKindMixed      = "mixed"
)

// Dataset 一次导入产生的逻辑数据集
type Dataset struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	UID          string `gorm:"type:varchar(64);uniqueIndex"`
	Name         string `gorm:"type:varchar(255)"`
	Description  string `gorm:"type:varchar(1024)"`
	GeometryKind string `gorm:"type:varchar(32)"` // point | linestring | polygon | mixed
	SourceFormat string `gorm:"type:varchar(32)"`
	SourceFile   string `gorm:"type:varchar(512)"`
	FeatureCount int64
	Bounds       datatypes.JSON `gorm:"type:jsonb"` // [minx,miny,maxx,maxy]
	SRS          string         `gorm:"type:varchar(16)"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Layer 数据集下的图层，当前每次导入创建一个
type Layer struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	UID          string `gorm:"type:varchar(64);uniqueIndex"`
	DatasetUID   string `gorm:"type:varchar(64);index"`
	Name         string `gorm:"type:varchar(255)"`
	GeometryKind string `gorm:"type:varchar(32)"`
	FeatureCount int64
	Visible      bool `gorm:"default:true"`
	MinZoom      int  `gorm:"default:0"`
	MaxZoom      int  `gorm:"default:22"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Feature 单条要素记录。geom列由InitDB的空间DDL创建，不在结构体中
type Feature struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	LayerUID   string         `gorm:"type:varchar(64);index"`
	Properties datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

// BBox 数据集包围盒，序列化为[minx,miny,maxx,maxy]
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func BBoxFromBound(b orb.Bound) BBox {
	return BBox{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

func (b BBox) ToJSON() datatypes.JSON {
	data, _ := json.Marshal([4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY})
	return datatypes.JSON(data)
}

func BBoxFromJSON(data datatypes.JSON) (BBox, bool) {
	var arr [4]float64
	if len(data) == 0 {
		return BBox{}, false
	}
	if err := json.Unmarshal(data, &arr); err != nil {
		return BBox{}, false
	}
	return BBox{MinX: arr[0], MinY: arr[1], MaxX: arr[2], MaxY: arr[3]}, true
}
