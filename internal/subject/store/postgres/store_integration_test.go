//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"vaultgate/internal/authz"
	"vaultgate/internal/subject/store/postgres"
	dErrors "vaultgate/pkg/domain-errors"
	"vaultgate/pkg/testutil/containers"
)

type SubjectStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
}

func TestSubjectStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SubjectStoreSuite))
}

func (s *SubjectStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.NewPostgres(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *SubjectStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "subjects"))
}

func (s *SubjectStoreSuite) TestPutAndGet() {
	ctx := context.Background()

	subject := authz.Subject{
		ID:                "user-1",
		Role:              authz.RoleClient,
		KYCStatus:         authz.KYCApproved,
		TwoFactorEnrolled: true,
		TrustedDevices:    []string{"fp-1", "fp-2"},
	}
	s.Require().NoError(s.store.Put(ctx, subject))

	got, err := s.store.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(&subject, got)
}

func (s *SubjectStoreSuite) TestPutUpserts() {
	ctx := context.Background()

	s.Require().NoError(s.store.Put(ctx, authz.Subject{
		ID:        "user-1",
		Role:      authz.RoleClient,
		KYCStatus: authz.KYCPending,
	}))
	s.Require().NoError(s.store.Put(ctx, authz.Subject{
		ID:             "user-1",
		Role:           authz.RoleClient,
		KYCStatus:      authz.KYCApproved,
		TrustedDevices: []string{"fp-1"},
	}))

	got, err := s.store.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(authz.KYCApproved, got.KYCStatus)
	s.Equal([]string{"fp-1"}, got.TrustedDevices)
}

func (s *SubjectStoreSuite) TestGetUnknownSubject() {
	_, err := s.store.Get(context.Background(), "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
