package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

// ItemUseCase casos de uso CRUD para artículos. Cantidad y costo promedio se manejan vía movimientos.
type ItemUseCase struct {
	txRunner ports.TxRunner
	locker   ports.Locker
	log      *logger.Logger
}

// NewItemUseCase construye el caso de uso.
func NewItemUseCase(txRunner ports.TxRunner, locker ports.Locker, log *logger.Logger) *ItemUseCase {
	return &ItemUseCase{txRunner: txRunner, locker: locker, log: log.Component("items")}
}

// Create crea un artículo sin existencias. El SKU es único.
func (uc *ItemUseCase) Create(ctx context.Context, in dto.CreateItemRequest) (*dto.ItemResponse, error) {
	if in.SKU == "" || in.Name == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.SellingPrice.IsNegative() || in.CostPrice.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	unlock, err := uc.locker.Lock(ctx, ports.SKULockKey(in.SKU))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now().UTC()
	item := &entity.Item{
		ID:           uuid.New().String(),
		SKU:          in.SKU,
		Name:         in.Name,
		CurrentQty:   decimal.Zero,
		CurrentWAC:   decimal.Zero,
		SellingPrice: in.SellingPrice,
		CostPrice:    in.CostPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = uc.txRunner.Run(ctx, func(repos repository.Set) error {
		existing, err := repos.Items.GetBySKU(ctx, in.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicate
		}
		return repos.Items.Create(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("item_id", item.ID).Str("sku", item.SKU).Msg("artículo creado")
	res := dto.ToItemResponse(item)
	return &res, nil
}

// GetByID obtiene un artículo por ID.
func (uc *ItemUseCase) GetByID(ctx context.Context, id string) (*dto.ItemResponse, error) {
	var item *entity.Item
	err := uc.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		item, err = repos.Items.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	res := dto.ToItemResponse(item)
	return &res, nil
}

// List lista artículos ordenados por SKU.
func (uc *ItemUseCase) List(ctx context.Context, page dto.PageRequest) (*dto.ItemListResponse, error) {
	page.DefaultPage()
	var items []*entity.Item
	err := uc.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		items, err = repos.Items.List(ctx, page.Limit, page.Offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := &dto.ItemListResponse{
		Items: make([]dto.ItemResponse, 0, len(items)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, i := range items {
		out.Items = append(out.Items, dto.ToItemResponse(i))
	}
	return out, nil
}

// Update actualiza nombre y precios de referencia. No permite modificar cantidad ni costo promedio.
func (uc *ItemUseCase) Update(ctx context.Context, id string, in dto.UpdateItemRequest) (*dto.ItemResponse, error) {
	if (in.SellingPrice != nil && in.SellingPrice.IsNegative()) || (in.CostPrice != nil && in.CostPrice.IsNegative()) {
		return nil, domain.ErrInvalidAmount
	}
	unlock, err := uc.locker.Lock(ctx, ports.ItemLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var item *entity.Item
	err = uc.txRunner.Run(ctx, func(repos repository.Set) error {
		var err error
		if item, err = repos.Items.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if in.Name != nil {
			item.Name = *in.Name
		}
		if in.SellingPrice != nil {
			item.SellingPrice = *in.SellingPrice
		}
		if in.CostPrice != nil {
			item.CostPrice = *in.CostPrice
		}
		item.UpdatedAt = time.Now().UTC()
		return repos.Items.Update(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("item_id", item.ID).Msg("artículo actualizado")
	res := dto.ToItemResponse(item)
	return &res, nil
}
