//go:build integration

package bridge_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/2beens/fittrack/internal/db"
	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/bridge"
	"github.com/2beens/fittrack/internal/docstore/docstoretest"
)

const initSQL = `
CREATE TABLE public.document
(
    collection VARCHAR     NOT NULL,
    id         VARCHAR     NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    data       JSONB       NOT NULL,
    PRIMARY KEY (collection, id)
);

ALTER TABLE public.document OWNER TO postgres;
CREATE INDEX ix_document_data ON public.document USING gin (data);
`

type PsqlRepoTestSuite struct {
	suite.Suite

	dockerPool *dockertest.Pool
	pgResource *dockertest.Resource
	dbPool     *pgxpool.Pool
}

func TestPsqlRepoTestSuite(t *testing.T) {
	suite.Run(t, new(PsqlRepoTestSuite))
}

func (s *PsqlRepoTestSuite) SetupSuite() {
	ctx := context.Background()

	var err error
	s.dockerPool, err = dockertest.NewPool("")
	s.Require().NoError(err, "could not create new dockertest pool")
	s.Require().NoError(s.dockerPool.Client.Ping(), "could not ping docker")

	s.pgResource, err = s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "12",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=fittrack",
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	s.Require().NoError(err, "run postgres")

	pgPort := s.pgResource.GetPort("5432/tcp")

	// lib/pq only for the readiness probe, the repo itself runs on pgx
	dsn := fmt.Sprintf("postgres://postgres@localhost:%s/fittrack?sslmode=disable", pgPort)
	s.Require().NoError(s.dockerPool.Retry(func() error {
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return sqlDB.Ping()
	}))

	s.dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:  "localhost",
		DBPort:  pgPort,
		DBName:  "fittrack",
		SSLMode: "disable",
	})
	s.Require().NoError(err)

	_, err = s.dbPool.Exec(ctx, initSQL)
	s.Require().NoError(err, "run init script")

	// an existing schema is left alone
	s.Require().NoError(bridge.NewPsqlRepo(s.dbPool).EnsureSchema(ctx))
}

func (s *PsqlRepoTestSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgResource != nil {
		if err := s.pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	}
}

func (s *PsqlRepoTestSuite) newRepo(t *testing.T) *bridge.PsqlRepo {
	_, err := s.dbPool.Exec(context.Background(), `TRUNCATE document`)
	require.NoError(t, err)
	return bridge.NewPsqlRepo(s.dbPool)
}

func (s *PsqlRepoTestSuite) TestStoreSuite() {
	docstoretest.RunStoreSuite(s.T(), func(t *testing.T) docstore.Store {
		h := startHost(t, s.newRepo(t), nil)
		return newTestClient(t, h.url, testSecret)
	})
}

func (s *PsqlRepoTestSuite) TestNullQueryMatchesMissingField() {
	t := s.T()
	ctx := context.Background()
	repo := s.newRepo(t)

	now := time.Now()
	require.NoError(t, repo.Insert(ctx, docstore.CollectionTrainingPlan, []docstore.Document{
		docstore.Stamp(docstore.Document{"title": "Squat"}, now),
		docstore.Stamp(docstore.Document{"title": "Row", "relatedRecordId": nil}, now),
		docstore.Stamp(docstore.Document{"title": "Bench", "relatedRecordId": "t1"}, now),
	}))

	unlinked, err := repo.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{"relatedRecordId": nil})
	require.NoError(t, err)
	s.Len(unlinked, 2)

	count, err := repo.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{"relatedRecordId": "t1"},
		docstore.Document{"completed": true},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
		now,
	)
	require.NoError(t, err)
	s.Equal(1, count)

	linked, err := repo.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{"completed": true})
	require.NoError(t, err)
	s.Require().Len(linked, 1)
	s.Equal("Bench", linked[0]["title"])
	s.Equal(docstore.FormatTime(now), linked[0][docstore.FieldUpdatedAt])
}
