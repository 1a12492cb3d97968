package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/transport/grpcapi"
)

var errClampViolated = errors.New("cart line quantity exceeds stock")

// cartClient реализуется *grpcapi.Client.
type cartClient interface {
	Login(ctx context.Context, email, password string) (*grpcapi.LoginResponse, error)
	GetCart(ctx context.Context) (*grpcapi.Cart, error)
	AddItem(ctx context.Context, productID string, qty int) (*grpcapi.Cart, error)
	UpdateQuantity(ctx context.Context, productID string, qty int) (*grpcapi.Cart, error)
	ClearCart(ctx context.Context) (*grpcapi.Cart, error)
	Checkout(ctx context.Context, form checkout.Form, opts ...grpc.CallOption) (*grpcapi.CheckoutResponse, error)
}

// runner держит общее для всех воркеров состояние прогона.
type runner struct {
	cfg   config
	rec   *recorder
	runID string
	token string
}

// execute прогоняет сценарии на готовых клиентах и собирает отчёт.
func execute(cfg config, clients []cartClient) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("at least one client is required")
	}

	r := &runner{cfg: cfg, rec: newRecorder()}
	if cfg.mode == modeCartCheckout {
		token, err := r.login(clients[0])
		if err != nil {
			return report{}, fmt.Errorf("login %s: %w", cfg.email, err)
		}
		r.token = token
	}

	startedAt := time.Now()
	r.runID = fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	jobs := make(chan int, cfg.concurrency*2)
	var (
		failed atomic.Int64
		wg     sync.WaitGroup
	)
	for w := range cfg.concurrency {
		client := clients[w%len(clients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if err := r.scenario(client, index); err != nil {
					failed.Add(1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := r.rec.build(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failed.Load() > 0 {
		result.FailedScenarios = failed.Load()
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result, nil
}

// dispatchJobs выдаёт номера сценариев, пока не исчерпан счётчик или время.
func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()
	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-deadline.C:
			return
		case jobs <- i:
		}
	}
}

func (r *runner) login(client cartClient) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Login(ctx, r.cfg.email, r.cfg.password)
	r.rec.record("Login", time.Since(start), grpcCode(err))
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// scenario проходит путь покупателя в отдельной корзине: добавление,
// изменение количества, чтение, затем очистка или оформление заказа.
func (r *runner) scenario(client cartClient, index int) (err error) {
	started := time.Now()
	defer func() {
		code := grpcCode(err)
		if errors.Is(err, errClampViolated) {
			code = codes.DataLoss
		}
		r.rec.record(scenarioMethod, time.Since(started), code)
	}()

	cfg := r.cfg
	session := fmt.Sprintf("%s-%s-%d", cfg.sessionTag, r.runID, index)
	productID := cfg.products[index%len(cfg.products)]

	mutations := []struct {
		method string
		qty    int
		call   func(context.Context, string, int) (*grpcapi.Cart, error)
	}{
		{"AddItem", cfg.quantity, client.AddItem},
		{"UpdateQuantity", cfg.quantity + 1, client.UpdateQuantity},
	}
	for _, m := range mutations {
		cart, err := timedCall(r.rec, m.method, cfg.timeout, session, func(ctx context.Context) (*grpcapi.Cart, error) {
			return m.call(ctx, productID, m.qty)
		})
		if err != nil {
			return err
		}
		if err := checkClamped(cart); err != nil {
			return err
		}
	}

	if _, err := timedCall(r.rec, "GetCart", cfg.timeout, session, client.GetCart); err != nil {
		return err
	}

	if cfg.mode == modeCart {
		_, err = timedCall(r.rec, "ClearCart", cfg.timeout, session, client.ClearCart)
		return err
	}

	key := fmt.Sprintf("lt-checkout-%s-%d", r.runID, index)
	_, err = timedCall(r.rec, "Checkout", cfg.timeout, session, func(ctx context.Context) (*grpcapi.CheckoutResponse, error) {
		ctx = grpcapi.WithIdempotencyKey(grpcapi.WithToken(ctx, r.token), key)
		return client.Checkout(ctx, loadForm(cfg.email))
	})
	// распроданный товар даёт пустую корзину; под нагрузкой это ожидаемо
	if status.Code(err) == codes.FailedPrecondition {
		return nil
	}
	return err
}

func timedCall[T any](rec *recorder, method string, timeout time.Duration, session string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := fn(grpcapi.WithSession(ctx, session))
	rec.record(method, time.Since(start), grpcCode(err))
	return resp, err
}

// checkClamped проверяет, что сервер не отдал строку сверх остатка.
func checkClamped(cart *grpcapi.Cart) error {
	if cart == nil {
		return nil
	}
	for _, line := range cart.Lines {
		if line.Quantity < 1 || line.Quantity > line.Stock {
			return fmt.Errorf("%w: %s quantity=%d stock=%d", errClampViolated, line.ProductID, line.Quantity, line.Stock)
		}
	}
	return nil
}

func loadForm(email string) checkout.Form {
	return checkout.Form{
		Name:       "Load Test",
		Email:      email,
		Address:    "1 Benchmark Way",
		City:       "Loadville",
		PostalCode: "00000",
		CardNumber: "4242424242424242",
		CardExpiry: "12/30",
		CardCVC:    "123",
	}
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
