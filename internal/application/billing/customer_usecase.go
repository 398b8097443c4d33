package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

// CustomerUseCase casos de uso para clientes (facturación).
type CustomerUseCase struct {
	txRunner ports.TxRunner
	log      *logger.Logger
}

// NewCustomerUseCase construye el caso de uso.
func NewCustomerUseCase(txRunner ports.TxRunner, log *logger.Logger) *CustomerUseCase {
	return &CustomerUseCase{txRunner: txRunner, log: log.Component("customers")}
}

// Create crea un nuevo cliente.
func (uc *CustomerUseCase) Create(ctx context.Context, in dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.ErrInvalidInput
	}
	now := time.Now().UTC()
	customer := &entity.Customer{
		ID:        uuid.New().String(),
		Name:      name,
		TaxID:     strings.TrimSpace(in.TaxID),
		Email:     in.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := uc.txRunner.Run(ctx, func(repos repository.Set) error {
		return repos.Customers.Create(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("customer_id", customer.ID).Msg("cliente creado")
	res := dto.ToCustomerResponse(customer)
	return &res, nil
}

// GetByID obtiene un cliente por ID.
func (uc *CustomerUseCase) GetByID(ctx context.Context, id string) (*dto.CustomerResponse, error) {
	var c *entity.Customer
	err := uc.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		c, err = repos.Customers.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	res := dto.ToCustomerResponse(c)
	return &res, nil
}

// List lista clientes.
func (uc *CustomerUseCase) List(ctx context.Context, limit, offset int) ([]*dto.CustomerResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var list []*entity.Customer
	err := uc.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		list, err = repos.Customers.List(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*dto.CustomerResponse, 0, len(list))
	for _, c := range list {
		res := dto.ToCustomerResponse(c)
		out = append(out, &res)
	}
	return out, nil
}
