package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/config"
	"go.trai.ch/cellar/internal/adapters/executor"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/cellar/internal/adapters/profile"
	"go.trai.ch/cellar/internal/adapters/telemetry/progrock"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the graft identifier for the wired App. The scheduler has no
// node of its own: it needs a *session.Session, which only exists for the
// lifetime of one run, so App.Run constructs one directly instead of
// pulling it from the DI graph.
const NodeID graft.ID = "app.main"

func init() {
	graft.Register(graft.Node[*App]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			logger.NodeID,
			config.NodeID,
			profile.NodeID,
			executor.NodeID,
			progrock.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			cfgLoader, err := graft.Dep[*config.Loader](ctx)
			if err != nil {
				return nil, err
			}
			profileLoader, err := graft.Dep[*profile.Loader](ctx)
			if err != nil {
				return nil, err
			}
			exec, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}
			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}
			return New(log, cfgLoader, profileLoader, exec, tel, DefaultCafDir), nil
		},
	})
}
