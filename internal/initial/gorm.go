package initial

import (
	"NotaLink/internal/config"
	capabilityEntity "NotaLink/internal/modules/capability/domain/entity"
	schedulerEntity "NotaLink/internal/modules/scheduler/domain/entity"
	sessionEntity "NotaLink/internal/modules/session/domain/entity"
	userEntity "NotaLink/internal/modules/user/domain/entity"

	"NotaLink/pkg/zlog"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var GormDB *gorm.DB

func init() {
	conf := config.GetConfig()
	user := conf.MysqlConfig.User
	password := conf.MysqlConfig.Password
	host := conf.MysqlConfig.Host
	port := conf.MysqlConfig.Port
	dbName := conf.MysqlConfig.DatabaseName
	if dbName == "" {
		dbName = conf.AppName
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, password, host, port, dbName)
	var err error
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		zlog.Fatal(err.Error())
	}
	// 自动迁移，如果没有建表，会自动创建对应的表
	err = GormDB.AutoMigrate(
		&userEntity.Account{},

		&sessionEntity.Session{},
		&sessionEntity.SessionMessage{},

		&capabilityEntity.Entitlement{},
		&capabilityEntity.UsageRecord{},
		&capabilityEntity.Credential{},
		&capabilityEntity.AuditEvent{},

		&schedulerEntity.ScheduledTask{},
		&schedulerEntity.TaskExecution{},
	)
	if err != nil {
		zlog.Fatal(err.Error())
	}
}
