package store

import (
	"context"
	"errors"
	"time"

	"studiobook/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

type Repository interface {
	ListClients(ctx context.Context, search string) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	ListServices(ctx context.Context, includeInactive bool) ([]domain.Service, error)
	GetServicesByIDs(ctx context.Context, ids []string) (map[string]domain.Service, error)
	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	DeleteService(ctx context.Context, id string) error

	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListBookings(ctx context.Context, from time.Time, to time.Time) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	// SaveBooking inserts or updates the booking row and replaces all three
	// line collections in one transaction.
	SaveBooking(ctx context.Context, booking domain.Booking) (*domain.Booking, error)
	DeleteBooking(ctx context.Context, id string) error

	ListAdditionalCosts(ctx context.Context, from time.Time, to time.Time) ([]domain.AdditionalCost, error)
	GetAdditionalCost(ctx context.Context, id string) (*domain.AdditionalCost, error)
	CreateAdditionalCost(ctx context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error)
	UpdateAdditionalCost(ctx context.Context, cost domain.AdditionalCost) (*domain.AdditionalCost, error)
	DeleteAdditionalCost(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
