package importer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/GrainArc/GeoPorter/Transformer"
	"github.com/GrainArc/GeoPorter/models"
	"github.com/GrainArc/GeoPorter/spatial"
	"github.com/paulmach/orb"
	"gorm.io/datatypes"
)

// memStore 内存版数据存储，事务用快照回滚模拟，可注入批次失败
type memStore struct {
	datasets map[string]*models.Dataset
	layers   map[string]*models.Layer
	features map[string][]spatial.FeatureRecord

	insertCalls      int
	failOnInsertCall int // 第N次InsertFeatures时报错，0表示不注入

	invalidWKT map[string]bool
	repaired   map[string]orb.Geometry

	statsCalls int
}

func newMemStore() *memStore {
	return &memStore{
		datasets: make(map[string]*models.Dataset),
		layers:   make(map[string]*models.Layer),
		features: make(map[string][]spatial.FeatureRecord),
	}
}

func (s *memStore) snapshot() (map[string]*models.Dataset, map[string]*models.Layer, map[string][]spatial.FeatureRecord) {
	datasets := make(map[string]*models.Dataset, len(s.datasets))
	for k, v := range s.datasets {
		copied := *v
		datasets[k] = &copied
	}
	layers := make(map[string]*models.Layer, len(s.layers))
	for k, v := range s.layers {
		copied := *v
		layers[k] = &copied
	}
	features := make(map[string][]spatial.FeatureRecord, len(s.features))
	for k, v := range s.features {
		features[k] = append([]spatial.FeatureRecord{}, v...)
	}
	return datasets, layers, features
}

func (s *memStore) RunInTransaction(fn func(tx spatial.Datastore) error) error {
	datasets, layers, features := s.snapshot()
	if err := fn(s); err != nil {
		s.datasets, s.layers, s.features = datasets, layers, features
		return err
	}
	return nil
}

func (s *memStore) CreateDataset(d *models.Dataset) error {
	s.datasets[d.UID] = d
	return nil
}

func (s *memStore) CreateLayer(l *models.Layer) error {
	s.layers[l.UID] = l
	return nil
}

func (s *memStore) SaveDataset(d *models.Dataset) error {
	s.datasets[d.UID] = d
	return nil
}

func (s *memStore) SaveLayer(l *models.Layer) error {
	s.layers[l.UID] = l
	return nil
}

func (s *memStore) GetDataset(uid string) (*models.Dataset, error) {
	d, ok := s.datasets[uid]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found", uid)
	}
	return d, nil
}

func (s *memStore) ListDatasets() ([]models.Dataset, error) {
	var list []models.Dataset
	for _, d := range s.datasets {
		list = append(list, *d)
	}
	return list, nil
}

func (s *memStore) GetLayerByDataset(datasetUID string) (*models.Layer, error) {
	for _, l := range s.layers {
		if l.DatasetUID == datasetUID {
			return l, nil
		}
	}
	return nil, fmt.Errorf("layer for dataset %s not found", datasetUID)
}

func (s *memStore) InsertFeatures(layerUID string, batch []spatial.FeatureRecord) error {
	s.insertCalls++
	if s.failOnInsertCall > 0 && s.insertCalls == s.failOnInsertCall {
		return fmt.Errorf("datastore unavailable")
	}
	s.features[layerUID] = append(s.features[layerUID], batch...)
	return nil
}

func (s *memStore) LayerStats(layerUID string) (int64, models.BBox, error) {
	s.statsCalls++
	feats := s.features[layerUID]
	if len(feats) == 0 {
		return 0, models.BBox{}, nil
	}
	bound := feats[0].Geometry.Bound()
	for _, f := range feats[1:] {
		bound = bound.Union(f.Geometry.Bound())
	}
	return int64(len(feats)), models.BBoxFromBound(bound), nil
}

func (s *memStore) ExportFeatures(layerUID string) ([]spatial.ExportedFeature, error) {
	var out []spatial.ExportedFeature
	for _, f := range s.features[layerUID] {
		out = append(out, spatial.ExportedFeature{Properties: f.Properties, Geometry: f.Geometry})
	}
	return out, nil
}

func (s *memStore) IsValidWKT(wktText string) (bool, error) {
	return !s.invalidWKT[wktText], nil
}

func (s *memStore) RepairWKT(wktText string) (orb.Geometry, bool) {
	g, ok := s.repaired[wktText]
	return g, ok
}

func (s *memStore) featureCount() int {
	total := 0
	for _, feats := range s.features {
		total += len(feats)
	}
	return total
}

// memSessions 内存版会话存储，沿用和GormSessionStore一致的状态约束
type memSessions struct {
	sessions map[string]*models.ImportSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*models.ImportSession)}
}

func (st *memSessions) Create(s *models.ImportSession) error {
	if s.Status == "" {
		s.Status = models.SessionPending
	}
	copied := *s
	st.sessions[s.UID] = &copied
	return nil
}

func (st *memSessions) MarkProcessing(uid string) error {
	s, ok := st.sessions[uid]
	if !ok {
		return fmt.Errorf("session %s not found", uid)
	}
	if s.Status != models.SessionPending {
		return fmt.Errorf("session %s is %s, not pending", uid, s.Status)
	}
	s.Status = models.SessionProcessing
	return nil
}

func (st *memSessions) AttachDataset(uid string, datasetUID string) error {
	s, ok := st.sessions[uid]
	if !ok {
		return fmt.Errorf("session %s not found", uid)
	}
	s.DatasetUID = datasetUID
	return nil
}

func (st *memSessions) UpdateProgress(uid string, processed int, errCount int, errs []RowError) error {
	s, ok := st.sessions[uid]
	if !ok {
		return fmt.Errorf("session %s not found", uid)
	}
	if processed < s.ProcessedRows {
		processed = s.ProcessedRows
	}
	if s.TotalRows > 0 && processed > s.TotalRows {
		processed = s.TotalRows
	}
	s.ProcessedRows = processed
	s.ErrorCount = errCount
	data, _ := json.Marshal(errs)
	s.Errors = datatypes.JSON(data)
	return nil
}

func (st *memSessions) SetTotal(uid string, total int) error {
	s, ok := st.sessions[uid]
	if !ok {
		return fmt.Errorf("session %s not found", uid)
	}
	s.TotalRows = total
	return nil
}

func (st *memSessions) Finalize(uid string, status string, failReason string) error {
	s, ok := st.sessions[uid]
	if !ok {
		return fmt.Errorf("session %s not found", uid)
	}
	if s.Finished() {
		return fmt.Errorf("session %s already finished", uid)
	}
	s.Status = status
	s.FailReason = failReason
	return nil
}

func (st *memSessions) Get(uid string) (*models.ImportSession, error) {
	s, ok := st.sessions[uid]
	if !ok {
		return nil, fmt.Errorf("session %s not found", uid)
	}
	copied := *s
	return &copied, nil
}

// fakeRows 切片驱动的RowReader
type fakeRows struct {
	rows     []Transformer.RawRow
	pos      int
	total    int
	srs      string
	warnings []string
}

func newFakeRows(rows []Transformer.RawRow) *fakeRows {
	return &fakeRows{rows: rows, total: len(rows), srs: "4326"}
}

func (f *fakeRows) Next() (*Transformer.RawRow, error) {
	if f.pos >= len(f.rows) {
		return nil, io.EOF
	}
	row := &f.rows[f.pos]
	f.pos++
	return row, nil
}

func (f *fakeRows) Total() int         { return f.total }
func (f *fakeRows) Warnings() []string { return f.warnings }
func (f *fakeRows) SRS() string        { return f.srs }
func (f *fakeRows) Close() error       { return nil }
