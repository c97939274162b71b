package service

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/vdoc"
)

// Router picks the MarkupService for a virtual document extension.
type Router struct {
	mu       sync.RWMutex
	services map[string]MarkupService
}

func NewRouter() *Router {
	return &Router{services: make(map[string]MarkupService)}
}

func (r *Router) Register(ext string, s MarkupService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[ext] = s
}

// Service returns the service for ext. An unknown extension reports false;
// callers treat that as "no result".
func (r *Router) Service(ext string) (MarkupService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[ext]
	return s, ok
}

func (r *Router) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.services))
	for ext := range r.services {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// CloseDocument tells every service that tracks documents that the views of
// identity are gone.
func (r *Router) CloseDocument(ctx context.Context, identity string) error {
	var errs error
	for _, ext := range r.Extensions() {
		s, _ := r.Service(ext)
		dc, ok := s.(DocumentCloser)
		if !ok {
			continue
		}
		view, err := projection.ParseView(ext)
		if err != nil {
			continue
		}
		errs = multierr.Append(errs, dc.CloseDocument(ctx, vdoc.Encode(identity, view)))
	}
	return errs
}

// Shutdown stops every service concurrently and reports all failures.
func (r *Router) Shutdown(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, ext := range r.Extensions() {
		s, _ := r.Service(ext)
		sd, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		g.Go(func() error {
			err := sd.Shutdown(ctx)
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// StartBackends starts one LSPService per configured backend concurrently.
// A backend that fails to start is left out of the router; its error is
// part of the returned aggregate, so the server can run without it.
func StartBackends(ctx context.Context, backends []*config.Backend, content *vdoc.ContentProvider, rootURI string) (*Router, error) {
	router := NewRouter()

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	for _, b := range backends {
		b := b
		svc := NewLSPService(b, content)
		g.Go(func() error {
			if err := svc.Start(ctx, rootURI); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			router.Register(b.Extension, svc)
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		zerolog.Ctx(ctx).Warn().Err(errs).Strs("started", router.Extensions()).Msg("some backends failed to start")
	}
	return router, errs
}
