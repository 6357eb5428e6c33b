package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"roster/bizerror"
	"roster/client/bus"
	"roster/client/es"
	"roster/client/identity"
	"roster/domain"
	"roster/domain/invite"
	"roster/domain/member"
	"roster/domain/policy"
	"roster/event"
	"roster/indices"
	"roster/infra/tracing"
	"roster/misc"
	"roster/persistence"
	"roster/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const eventSyncInterval = 30 * time.Second

func main() {
	log.Println("service start")

	tracingCloser, err := tracing.Setup()
	if err != nil {
		log.Fatalf("tracing setup failed %v\n", err)
	}
	defer tracingCloser.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database conneciton failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(context.Background()).AutoMigrate(
		&domain.Project{},
		&domain.ProjectMember{},
		&domain.ProjectMemberInvite{},
		&policy.PermissionPolicy{},
		&event.EventRecord{},
	).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	es.CreateClientFromEnv()
	indices.RegisterInviteIndexer()

	go syncUnsentEvents()

	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, misc.GetServiceName())
	})

	inviteManager := invite.NewManager(identity.Client{}, invite.EventNotifier{})
	invite.RegisterProjectMemberInvitesRestAPI(engine, inviteManager, session.AuthFilter())
	member.RegisterProjectMembersRestAPI(engine, session.AuthFilter())
	indices.RegisterIndicesRestAPI(engine, session.AuthFilter())

	err = engine.Run(":80")
	if err != nil {
		panic(err)
	}
}

// syncUnsentEvents periodically redelivers events whose first delivery to the
// bus failed.
func syncUnsentEvents() {
	if bus.ServiceURL() == "" {
		logrus.Infoln("event bus is not configured, unsent event sync disabled")
		return
	}
	for range time.Tick(eventSyncInterval) {
		if _, err := event.SyncUnsentEvents(context.Background(), 100); err != nil {
			logrus.Warnf("sync unsent events failed: %v", err)
		}
	}
}
