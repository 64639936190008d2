package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/cache"
	"restopos/backend/internal/catalog"
	"restopos/backend/internal/domain"
	"restopos/backend/internal/money"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options are the injected configuration inputs of total computation.
// They come from the settings store, never from the entities themselves.
type Options struct {
	ServiceChargeRate float64 // applied to dine-in orders, on (subtotal - discount)
	TaxRate           float64 // applied to all orders, on (subtotal - discount)
	ReceiptFooter     string
	SnapshotTTL       time.Duration
}

type Service struct {
	repo      store.Repository
	catalog   *catalog.Catalog
	snapshots cache.SnapshotCache
	opts      Options
}

func New(repo store.Repository, snapshots cache.SnapshotCache, opts Options) *Service {
	if snapshots == nil {
		snapshots = cache.NoopSnapshotCache{}
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 24 * time.Hour
	}

	return &Service{
		repo:      repo,
		catalog:   catalog.New(repo),
		snapshots: snapshots,
		opts:      opts,
	}
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityID).Msg("failed to write audit log")
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

// ---- products ----

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 0 || req.CostCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	switch req.Type {
	case domain.ProductStocked, domain.ProductService:
		if len(req.Components) > 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
	case domain.ProductManufactured:
		if len(req.Components) == 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		for _, component := range req.Components {
			if component.ComponentID == "" || component.QtyPerUnit <= 0 {
				return domain.Product{}, store.ErrInvalidInput
			}
		}
	default:
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:         xid.New("prod"),
		SKU:        req.SKU,
		Name:       req.Name,
		Category:   req.Category,
		Type:       req.Type,
		PriceCents: req.PriceCents,
		CostCents:  req.CostCents,
		Active:     true,
		Components: req.Components,
	}
	for i := range product.Components {
		product.Components[i].ProductID = product.ID
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.PriceCents != saved.PriceCents {
		actor, _ := ActorFromContext(ctx)
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			ProductID:     saved.ID,
			OldPriceCents: existing.PriceCents,
			NewPriceCents: saved.PriceCents,
			ChangedBy:     actor.Username,
			ChangedAt:     time.Now().UTC(),
		}); err != nil {
			log.Warn().Err(err).Str("product_id", saved.ID).Msg("failed to record price history")
		}
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) GetStockLevels(ctx context.Context, productIDs []string) (map[string]money.Quantity, error) {
	return s.repo.GetStockLevels(ctx, productIDs)
}

func (s *Service) ListDailyRecords(ctx context.Context, date string) ([]domain.DailyInventoryRecord, error) {
	if date == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListDailyRecords(ctx, date)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}
