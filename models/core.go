package models

import (
	"fmt"
	"log"

	"github.com/GrainArc/GeoPorter/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

var SessionDB *gorm.DB

func InitDB() {
	var err error
	DB, err = gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	DB.NamingStrategy = schema.NamingStrategy{
		SingularTable: true,
	}

	if err := migrateAllTables(DB); err != nil {
		log.Printf("Failed to migrate tables: %v", err)
	}
	if err := ensureSpatialColumns(DB); err != nil {
		log.Printf("Failed to prepare spatial columns: %v", err)
	}
}

// InitSessionDB 初始化会话侧库(SQLite)，会话记录不依赖主库事务
func InitSessionDB() error {
	var err error
	SessionDB, err = gorm.Open(sqlite.Open(config.SessionDB), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("连接会话数据库失败: %v", err)
		return err
	}
	if err := SessionDB.AutoMigrate(&ImportSession{}); err != nil {
		log.Printf("会话表迁移失败: %v", err)
		return err
	}
	return nil
}

func migrateAllTables(db *gorm.DB) error {
	models := []interface{}{
		&Dataset{},
		&Layer{},
		&Feature{},
		&ImportSession{},
	}
	return db.AutoMigrate(models...)
}

// ensureSpatialColumns 为要素表补充PostGIS几何列和GIST索引
// AutoMigrate不认识geometry类型，这里用原生SQL处理
func ensureSpatialColumns(db *gorm.DB) error {
	if err := db.Exec(`ALTER TABLE feature ADD COLUMN IF NOT EXISTS geom geometry`).Error; err != nil {
		return fmt.Errorf("add geom column: %w", err)
	}
	var exists bool
	checkIndexSql := `
		SELECT COUNT(*) > 0
		FROM pg_indexes
		WHERE tablename = 'feature' AND indexname = 'idx_feature_geom'
	`
	if err := db.Raw(checkIndexSql).Scan(&exists).Error; err != nil {
		return fmt.Errorf("check geom index: %w", err)
	}
	if !exists {
		if err := db.Exec(`CREATE INDEX idx_feature_geom ON feature USING GIST (geom)`).Error; err != nil {
			return fmt.Errorf("create geom index: %w", err)
		}
	}
	return nil
}
