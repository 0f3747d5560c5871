package models

import (
	"github.com/proaktivadmin/dokumenthub_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Office{}, &Employee{},
		&SyncSession{},
	)
	if err != nil {
		panic(err)
	}
}
