package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"circle-system/internal/status"
	"circle-system/models"
	"circle-system/monitoring"
	"circle-system/utils"
)

// Registry routes gateway calls by payment method. Every call goes through
// the gateway's circuit breaker.
type Registry struct {
	mu       sync.RWMutex
	gateways map[models.PaymentMethod]Gateway
	breakers map[models.PaymentMethod]*utils.CircuitBreaker
	monitor  *monitoring.Monitor
	settings utils.Settings
}

func NewRegistry(monitor *monitoring.Monitor, settings utils.Settings) *Registry {
	return &Registry{
		gateways: make(map[models.PaymentMethod]Gateway),
		breakers: make(map[models.PaymentMethod]*utils.CircuitBreaker),
		monitor:  monitor,
		settings: settings,
	}
}

func (r *Registry) Register(method models.PaymentMethod, gw Gateway) error {
	if method != models.MethodOnline && method != models.MethodBankTransfer {
		return fmt.Errorf("Register: method %q has no checkout", method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[method] = gw
	r.breakers[method] = utils.NewCircuitBreakerWithSettings(string(gw.GetProvider()), r.settings)
	return nil
}

// Get fails with a payment_method field error when no gateway serves method.
func (r *Registry) Get(method models.PaymentMethod) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("bank: no gateway registered for %s: %w", method, status.Invalid("payment_method", "not available"))
	}
	return gw, nil
}

func (r *Registry) lookup(method models.PaymentMethod) (Gateway, *utils.CircuitBreaker, error) {
	gw, err := r.Get(method)
	if err != nil {
		return nil, nil, err
	}
	r.mu.RLock()
	cb := r.breakers[method]
	r.mu.RUnlock()
	return gw, cb, nil
}

func (r *Registry) CreateCheckout(ctx context.Context, method models.PaymentMethod, req *CheckoutRequest) (*Checkout, error) {
	gw, cb, err := r.lookup(method)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	co, err := utils.Run(ctx, cb, func(ctx context.Context) (*Checkout, error) {
		return gw.CreateCheckout(ctx, req)
	})
	r.monitor.ObserveGateway(string(gw.GetProvider()), "create_checkout", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("CreateCheckout: %s: %w", gw.GetProvider(), err)
	}
	return co, nil
}

func (r *Registry) CheckTransaction(ctx context.Context, method models.PaymentMethod, sessionID string) (*Transaction, error) {
	gw, cb, err := r.lookup(method)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := utils.Run(ctx, cb, func(ctx context.Context) (*Transaction, error) {
		tx, err := gw.CheckTransaction(ctx, sessionID)
		if errors.Is(err, ErrManualReconciliation) {
			// not a downstream failure
			return nil, nil
		}
		return tx, err
	})
	r.monitor.ObserveGateway(string(gw.GetProvider()), "check_transaction", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("CheckTransaction: %s: %w", gw.GetProvider(), err)
	}
	if tx == nil {
		return nil, ErrManualReconciliation
	}
	return tx, nil
}

// Close closes every gateway and reports all failures.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for method, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			slog.Error("close gateway", "method", method, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
