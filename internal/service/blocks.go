package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/widget"
)

// BlockService manages block instances: their stored settings and the
// mounted controller of each block.
type BlockService struct {
	store  Store
	assets *AssetService
	bus    *EventBus
	cfg    widget.Config
	log    zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	controllers map[string]*widget.Controller
	ready       map[string]bool
}

// NewBlockService creates the service. cfg is the template every mounted
// controller is configured from; its Print hook is replaced per block.
func NewBlockService(store Store, assets *AssetService, bus *EventBus, cfg widget.Config) *BlockService {
	if bus == nil {
		bus = NewEventBus()
	}
	return &BlockService{
		store:       store,
		assets:      assets,
		bus:         bus,
		cfg:         cfg,
		log:         cfg.Logger,
		now:         time.Now,
		controllers: make(map[string]*widget.Controller),
		ready:       make(map[string]bool),
	}
}

// Bus returns the event bus blocks publish on.
func (s *BlockService) Bus() *EventBus {
	return s.bus
}

// Assets returns the asset service.
func (s *BlockService) Assets() *AssetService {
	return s.assets
}

// List returns all blocks.
func (s *BlockService) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// Get returns a block.
func (s *BlockService) Get(ctx context.Context, id string) (Record, error) {
	return s.store.Get(ctx, id)
}

// Create inserts a block with the default settings overlaid with p.
func (s *BlockService) Create(ctx context.Context, name string, p block.Patch) (Record, error) {
	now := s.now().UTC()
	r := Record{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		Created:  now,
		Updated:  now,
		Settings: block.Defaults().Apply(p),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return Record{}, err
	}
	s.log.Info().Str("block", r.ID).Str("name", r.Name).Msg("Block created")
	s.bus.Publish(Event{Action: ActionCreated, Block: r.ID})
	return r, nil
}

// Delete removes a block, unmounting its controller and dropping its assets.
func (s *BlockService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	ctrl := s.controllers[id]
	delete(s.controllers, id)
	delete(s.ready, id)
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}

	if s.assets != nil {
		if err := s.assets.Remove(id); err != nil {
			s.log.Warn().Err(err).Str("block", id).Msg("Removing assets failed")
		}
	}
	s.log.Info().Str("block", id).Msg("Block deleted")
	s.bus.Publish(Event{Action: ActionDeleted, Block: id})
	return nil
}

// Write merges a partial change into the stored settings. This is the
// host side of a controller's writes.
func (s *BlockService) Write(ctx context.Context, id string, p block.Patch) (Record, error) {
	r, err := s.store.Patch(ctx, id, p)
	if err != nil {
		return Record{}, err
	}
	s.bus.Publish(Event{Action: ActionUpdated, Block: id})
	return r, nil
}

// Controller returns the mounted controller of a block, mounting it on
// first use.
func (s *BlockService) Controller(ctx context.Context, id string) (*widget.Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.controllers[id]
	s.mu.Unlock()
	if ok {
		return ctrl, nil
	}

	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	cfg := s.cfg
	cfg.Print = printHook{s: s, id: id}
	cfg.Logger = s.log.With().Str("block", id).Logger()
	ctrl = widget.NewController(host{s: s, id: id}, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.controllers[id]; ok {
		ctrl.Close()
		return existing, nil
	}
	s.controllers[id] = ctrl
	return ctrl, nil
}

// Structure returns the settings surface of a block, resolving uploaded
// assets against the block's own files.
func (s *BlockService) Structure(id string) block.Structure {
	if s.assets == nil {
		return block.DefaultStructure(nil)
	}
	return block.DefaultStructure(s.assets.Resolver(id))
}

// Ready reports whether the block signalled print readiness.
func (s *BlockService) Ready(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready[id]
}

// Close unmounts every controller, flushing pending edits.
func (s *BlockService) Close() {
	s.mu.Lock()
	ctrls := make([]*widget.Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		ctrls = append(ctrls, c)
	}
	s.controllers = make(map[string]*widget.Controller)
	s.mu.Unlock()

	for _, c := range ctrls {
		c.Close()
	}
}

// IsNotFound reports whether err means a block or marker does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound) || errors.Is(err, block.ErrMarkerNotFound)
}

// host adapts the service to the widget's persistence interface.
type host struct {
	s  *BlockService
	id string
}

func (h host) Read(ctx context.Context) (block.Settings, error) {
	r, err := h.s.store.Get(ctx, h.id)
	if err != nil {
		return block.Settings{}, err
	}
	return r.Settings, nil
}

func (h host) Write(ctx context.Context, p block.Patch) error {
	if _, err := h.s.Write(ctx, h.id, p); err != nil {
		return fmt.Errorf("block %s: %w", h.id, err)
	}
	return nil
}

type printHook struct {
	s  *BlockService
	id string
}

func (p printHook) SetReady(ready bool) {
	p.s.mu.Lock()
	p.s.ready[p.id] = ready
	p.s.mu.Unlock()
	p.s.log.Debug().Str("block", p.id).Bool("ready", ready).Msg("Print readiness")
	p.s.bus.Publish(Event{Action: ActionReady, Block: p.id})
}

var (
	_ widget.Host      = host{}
	_ widget.PrintHook = printHook{}
)
