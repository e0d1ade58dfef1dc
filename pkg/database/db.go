// Package database 负责初始化数据库与 Redis 连接。
package database

import (
	"time"

	"medsmart-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB 根据配置的驱动初始化数据库连接。
// sqlite 是默认驱动（单文件嵌入式库，DSN 即文件路径）；
// mysql 用于共享部署，DSN 为标准 MySQL 连接串。
func InitDB(driver, dsn string) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	var err error
	DB, err = gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	// sqlite 单写者，连接池保持最小即可
	if driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Infof("database connected successfully (driver=%s)", driver)
}
