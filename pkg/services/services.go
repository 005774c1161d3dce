// Package services puts the long-lived resolution services in an ectoinject container.
// Route handlers resolve them from the request context.
package services

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/session"
	"github.com/Ramsey-B/clover/pkg/store"
)

// Services are the dependencies of the HTTP API. Nil members are not registered.
type Services struct {
	Logger   ectologger.Logger
	Entities store.EntityStore
	Issues   store.IssueStore
	Resolver *session.Resolver
	Executor *linking.Executor
	Matcher  *domainmatch.Matcher
}

// NewContainer registers the services in a new container. Container ids are global to
// the process and must be unique.
func NewContainer(id string, svc Services) (ectocontainer.DIContainer, error) {
	if svc.Logger == nil {
		return nil, fmt.Errorf("container %s: logger is required", id)
	}

	container, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       id,
		AllowCaptiveDependencies: true,
		AllowMissingDependencies: true,
		LoggerConfig: &ectocontainer.DIContainerLoggerConfig{
			Prefix:   "ectoinject",
			LogLevel: loglevel.WARN,
			Enabled:  true,
			LogFunc: func(ctx context.Context, level, msg string) {
				svc.Logger.WithContext(ctx).WithField("container_id", id).Warn(msg)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", id, err)
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, svc.Logger); err != nil {
		return nil, err
	}
	if svc.Entities != nil {
		if err := ectoinject.RegisterInstance[store.EntityStore](container, svc.Entities); err != nil {
			return nil, err
		}
	}
	if svc.Issues != nil {
		if err := ectoinject.RegisterInstance[store.IssueStore](container, svc.Issues); err != nil {
			return nil, err
		}
	}
	if svc.Resolver != nil {
		if err := ectoinject.RegisterInstance[*session.Resolver](container, svc.Resolver); err != nil {
			return nil, err
		}
	}
	if svc.Executor != nil {
		if err := ectoinject.RegisterInstance[*linking.Executor](container, svc.Executor); err != nil {
			return nil, err
		}
	}
	if svc.Matcher != nil {
		if err := ectoinject.RegisterInstance[*domainmatch.Matcher](container, svc.Matcher); err != nil {
			return nil, err
		}
	}

	return container, nil
}
