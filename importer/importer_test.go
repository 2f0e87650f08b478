package importer

import (
	"fmt"
	"testing"

	"github.com/GrainArc/GeoPorter/Transformer"
	"github.com/GrainArc/GeoPorter/mapping"
	"github.com/GrainArc/GeoPorter/models"
	"github.com/GrainArc/GeoPorter/spatial"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var coordMappings = []mapping.FieldMapping{
	{Source: "lat", Target: "lat", Type: mapping.TypeCoordinate},
	{Source: "lon", Target: "lon", Type: mapping.TypeCoordinate},
	{Source: "name", Target: "name", Type: mapping.TypeString},
}

func coordRow(index int, lat interface{}, lon interface{}, name string) Transformer.RawRow {
	return Transformer.RawRow{
		Index:  index,
		Fields: map[string]interface{}{"lat": lat, "lon": lon, "name": name},
	}
}

func TestImportData_Scenario(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	rows := newFakeRows([]Transformer.RawRow{
		coordRow(0, "40.71", "-74.00", "A"),
		coordRow(1, "bad", "-74.00", "B"),
		coordRow(2, "40.72", "-74.01", "C"),
	})

	result, err := New(store, sessions).ImportData(rows, Transformer.FormatCSV, "points.csv", Options{
		DatasetName: "测试点位",
		Mappings:    coordMappings,
		BatchSize:   10,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.FeaturesImported)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2, result.Errors[0].Row)
	require.Equal(t, "B", result.Errors[0].Data["name"])

	dataset, err := store.GetDataset(result.DatasetUID)
	require.NoError(t, err)
	require.Equal(t, models.GeomKindPoint, dataset.GeometryKind)
	require.EqualValues(t, 2, dataset.FeatureCount)

	bbox, ok := models.BBoxFromJSON(dataset.Bounds)
	require.True(t, ok)
	require.Equal(t, -74.01, bbox.MinX)
	require.Equal(t, -74.00, bbox.MaxX)
	require.Equal(t, 40.71, bbox.MinY)
	require.Equal(t, 40.72, bbox.MaxY)

	session, err := sessions.Get(result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, session.Status)
	require.Equal(t, 3, session.TotalRows)
	require.Equal(t, 3, session.ProcessedRows)
	require.Equal(t, 1, session.ErrorCount)
	require.Equal(t, result.DatasetUID, session.DatasetUID)
}

// n行中k行坏几何：processed==n, error_count==k, 入库n-k
func TestImportData_RowErrorIsolation(t *testing.T) {
	const n, k = 10, 3
	var raw []Transformer.RawRow
	for i := 0; i < n; i++ {
		if i < k {
			raw = append(raw, coordRow(i, "not-a-number", "-74.00", fmt.Sprintf("bad%d", i)))
		} else {
			raw = append(raw, coordRow(i, fmt.Sprintf("40.%d", i), "-74.00", fmt.Sprintf("ok%d", i)))
		}
	}
	store := newMemStore()
	sessions := newMemSessions()

	result, err := New(store, sessions).ImportData(newFakeRows(raw), Transformer.FormatCSV, "mixed.csv", Options{
		DatasetName: "隔离测试",
		Mappings:    coordMappings,
		BatchSize:   4,
	})
	require.NoError(t, err)
	require.Equal(t, n-k, result.FeaturesImported)
	require.Len(t, result.Errors, k)
	require.Equal(t, n-k, store.featureCount())

	session, err := sessions.Get(result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, n, session.ProcessedRows)
	require.Equal(t, k, session.ErrorCount)
}

func TestImportData_MonotonicProgress(t *testing.T) {
	var raw []Transformer.RawRow
	for i := 0; i < 7; i++ {
		raw = append(raw, coordRow(i, "40.71", "-74.00", fmt.Sprintf("p%d", i)))
	}
	store := newMemStore()
	sessions := newMemSessions()

	var reports []Progress
	_, err := New(store, sessions).ImportData(newFakeRows(raw), Transformer.FormatCSV, "progress.csv", Options{
		DatasetName: "进度测试",
		Mappings:    coordMappings,
		BatchSize:   2,
		OnProgress:  func(p Progress) { reports = append(reports, p) },
	})
	require.NoError(t, err)
	require.Len(t, reports, 4) // 2+2+2+1

	prev := 0
	for _, p := range reports {
		require.GreaterOrEqual(t, p.Processed, prev)
		require.LessOrEqual(t, p.Processed, p.Total)
		require.Equal(t, 7, p.Total)
		prev = p.Processed
	}
	require.Equal(t, 7, reports[len(reports)-1].Processed)
	require.Equal(t, 100, reports[len(reports)-1].Percentage)
}

// 第2批注入失败：已处理的第1批也必须回滚，会话进入failed
func TestImportData_FatalRollback(t *testing.T) {
	store := newMemStore()
	store.failOnInsertCall = 2
	sessions := newMemSessions()

	raw := []Transformer.RawRow{
		coordRow(0, "40.71", "-74.00", "A"),
		coordRow(1, "40.72", "-74.01", "B"),
		coordRow(2, "40.73", "-74.02", "C"),
	}
	imp := New(store, sessions)
	result, err := imp.ImportData(newFakeRows(raw), Transformer.FormatCSV, "fail.csv", Options{
		DatasetName: "回滚测试",
		Mappings:    coordMappings,
		BatchSize:   1,
	})
	require.Error(t, err)
	require.Nil(t, result)
	require.Equal(t, 0, store.featureCount())
	require.Empty(t, store.datasets)

	var session *models.ImportSession
	for uid := range sessions.sessions {
		session, _ = sessions.Get(uid)
	}
	require.NotNil(t, session)
	require.Equal(t, models.SessionFailed, session.Status)
	require.Contains(t, session.FailReason, "datastore unavailable")
}

func TestImportData_IdempotentAggregation(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	raw := []Transformer.RawRow{
		coordRow(0, "40.71", "-74.00", "A"),
		coordRow(1, "40.72", "-74.01", "B"),
	}
	result, err := New(store, sessions).ImportData(newFakeRows(raw), Transformer.FormatCSV, "agg.csv", Options{
		DatasetName: "聚合测试",
		Mappings:    coordMappings,
	})
	require.NoError(t, err)

	count1, bbox1, err := store.LayerStats(result.LayerUID)
	require.NoError(t, err)
	count2, bbox2, err := store.LayerStats(result.LayerUID)
	require.NoError(t, err)
	require.Equal(t, count1, count2)
	require.Equal(t, bbox1, bbox2)
}

// 同时带坐标映射和几何映射时几何值优先于合成点
func TestImportData_GeometryRoleWinsOverCoordinates(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	mappings := append([]mapping.FieldMapping{
		{Source: "wkt", Target: "geom", Type: mapping.TypeGeometry},
	}, coordMappings...)

	raw := []Transformer.RawRow{{
		Index: 0,
		Fields: map[string]interface{}{
			"lat": "40.71", "lon": "-74.00", "name": "A",
			"wkt": "POINT (10 20)",
		},
	}}
	result, err := New(store, sessions).ImportData(newFakeRows(raw), Transformer.FormatCSV, "priority.csv", Options{
		DatasetName: "优先级测试",
		Mappings:    mappings,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FeaturesImported)

	feats := store.features[result.LayerUID]
	require.Len(t, feats, 1)
	pt, ok := feats[0].Geometry.(orb.Point)
	require.True(t, ok)
	require.Equal(t, orb.Point{10, 20}, pt)
}

// GeoJSON点集导入后重聚合：要素数等于输入数，包围盒等于坐标极值
func TestImportData_GeoJSONRoundTrip(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	points := []orb.Point{{-74.00, 40.71}, {-74.01, 40.72}, {-73.99, 40.70}}
	var raw []Transformer.RawRow
	for i, pt := range points {
		raw = append(raw, Transformer.RawRow{
			Index:    i,
			Fields:   map[string]interface{}{"name": fmt.Sprintf("p%d", i)},
			Geometry: pt,
		})
	}
	result, err := New(store, sessions).ImportData(newFakeRows(raw), Transformer.FormatGeoJSON, "points.geojson", Options{
		DatasetName: "往返测试",
	})
	require.NoError(t, err)
	require.Equal(t, len(points), result.FeaturesImported)

	dataset, err := store.GetDataset(result.DatasetUID)
	require.NoError(t, err)
	require.EqualValues(t, len(points), dataset.FeatureCount)
	require.Equal(t, models.GeomKindPoint, dataset.GeometryKind)

	bbox, ok := models.BBoxFromJSON(dataset.Bounds)
	require.True(t, ok)
	require.Equal(t, -74.01, bbox.MinX)
	require.Equal(t, -73.99, bbox.MaxX)
	require.Equal(t, 40.70, bbox.MinY)
	require.Equal(t, 40.72, bbox.MaxY)
}

func TestImportData_EmptySource(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	result, err := New(store, sessions).ImportData(newFakeRows(nil), Transformer.FormatCSV, "empty.csv", Options{
		DatasetName: "空文件",
		Mappings:    coordMappings,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 0, result.FeaturesImported)

	session, err := sessions.Get(result.SessionUID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, session.Status)
}

func TestInferGeometryKind(t *testing.T) {
	coordOnly := []mapping.FieldMapping{{Source: "lat", Target: "lat", Type: mapping.TypeCoordinate}}
	require.Equal(t, models.GeomKindPoint, inferGeometryKind(coordOnly, nil))

	withGeom := append(coordOnly, mapping.FieldMapping{Source: "wkt", Target: "geom", Type: mapping.TypeGeometry})
	require.Equal(t, models.GeomKindMixed, inferGeometryKind(withGeom, nil))

	lines := []spatial.FeatureRecord{
		{Geometry: orb.LineString{{0, 0}, {1, 1}}},
		{Geometry: orb.MultiLineString{}},
	}
	require.Equal(t, models.GeomKindLineString, inferGeometryKind(nil, lines))

	mixed := []spatial.FeatureRecord{
		{Geometry: orb.Point{0, 0}},
		{Geometry: orb.Polygon{}},
	}
	require.Equal(t, models.GeomKindMixed, inferGeometryKind(nil, mixed))
}
