package models

import (
	"log"

	"github.com/trend4media/billing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Creator{},
		&OrgEdge{}, &OrgRelation{},
		&Period{}, &ImportBatch{}, &RevenueItem{},
		&RuleSet{},
		&CommissionLedger{},
		&Payout{}, &PayoutLine{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
