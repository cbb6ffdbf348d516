package database

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wasender/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	db          *gorm.DB
	client_once sync.Once
)

func InitDB(dbc config.Database) {
	client_once.Do(func() {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbc.Host, dbc.Port, dbc.User, dbc.Pass, dbc.Name)
		conn, err := gorm.Open(
			postgres.New(
				postgres.Config{
					DSN:                  dsn,
					PreferSimpleProtocol: true,
				},
			),
			&gorm.Config{
				DisableForeignKeyConstraintWhenMigrating: false,
				Logger: gormlogger.Default.LogMode(gormlogger.Warn),
			},
		)
		if err != nil {
			log.Panic().Err(err).Msg("failed to initialize database")
		}

		sqlDB, err := conn.DB()
		if err != nil {
			log.Panic().Err(err).Msg("failed to get underlying database connection")
		}

		if err := sqlDB.Ping(); err != nil {
			log.Panic().Err(err).Msg("failed to ping database")
		}

		log.Info().Str("host", dbc.Host).Str("db", dbc.Name).Msg("database connection established")

		if err := AutoMigrate(conn); err != nil {
			log.Panic().Err(err).Msg("migration failed")
		}

		log.Info().Msg("database migrations completed")
		db = conn
	})
}

func DBClient() *gorm.DB {
	if db == nil {
		log.Panic().Msg("Postgres is not initialized. Call InitDB first.")
	}
	return db
}
