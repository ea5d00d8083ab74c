// Package app assembles the domain services shared by the API server, the
// worker and the operator CLI.
package app

import (
	"fmt"
	"log/slog"

	"github.com/hugh/ia-marketing/internal/audit"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/credits"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/membership"
	"github.com/hugh/ia-marketing/internal/organizations"
	"github.com/hugh/ia-marketing/internal/profiles"
	"github.com/hugh/ia-marketing/internal/projects"
	"github.com/hugh/ia-marketing/internal/prompts"
	"github.com/hugh/ia-marketing/internal/settings"
	"github.com/hugh/ia-marketing/internal/videos"
	"gorm.io/gorm"
)

type Services struct {
	Tx            *database.TxManager
	Gate          *authz.Gate
	Members       *membership.Store
	Audit         *audit.Recorder
	Ledger        *credits.Ledger
	Caps          *credits.CapTracker
	Settings      *settings.Service
	Credits       *credits.Service
	Organizations *organizations.Service
	Profiles      *profiles.Service
	Projects      *projects.Service
	PromptStore   *prompts.Store
	Prompts       *prompts.Service
	Videos        *videos.Service
}

// NewServices wires every service over db. Dispatch and URL signing are
// attached by the caller with Videos.WithDispatcher and WithURLSigner.
func NewServices(db *gorm.DB, log *slog.Logger) (*Services, error) {
	policy, err := authz.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policy: %w", err)
	}

	s := &Services{Tx: database.NewTxManager(db)}
	s.Members = membership.NewStore(s.Tx)
	s.Gate = authz.NewGate(s.Members, policy)
	s.Audit = audit.NewRecorder(s.Tx)
	s.Ledger = credits.NewLedger(s.Tx, log)
	s.Caps = credits.NewCapTracker(s.Tx)
	s.Settings = settings.NewService(s.Tx, s.Audit, log)
	s.Credits = credits.NewService(s.Ledger, s.Caps, s.Settings, s.Gate, s.Tx, s.Audit, log)
	s.Organizations = organizations.NewService(s.Tx, s.Members, s.Ledger, s.Audit, log)
	s.Profiles = profiles.NewService(s.Tx, s.Members, s.Organizations, s.Audit, log)
	s.Projects = projects.NewService(s.Tx, s.Gate, s.Caps, s.Audit, log)
	s.PromptStore = prompts.NewStore(s.Tx)
	s.Prompts = prompts.NewService(s.PromptStore, s.Gate, s.Tx, s.Audit, log)
	s.Videos = videos.NewService(s.Tx, s.Gate, s.Ledger, s.Caps, s.Projects, s.PromptStore, s.Settings, s.Audit, log)
	return s, nil
}
