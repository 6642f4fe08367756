package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/user"
)

// --- Mock implementations ---

// state is everything the fake store persists. It is deep-copied so tests can
// compare before/after snapshots.
type state struct {
	products map[string]product.Product
	carts    map[string]cart.Cart // by user ID
	orders   map[string]Order
}

func (s state) clone() state {
	out := state{
		products: maps.Clone(s.products),
		carts:    make(map[string]cart.Cart, len(s.carts)),
		orders:   make(map[string]Order, len(s.orders)),
	}
	for k, c := range s.carts {
		c.Items = slices.Clone(c.Items)
		out.carts[k] = c
	}
	for k, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		out.orders[k] = o
	}
	return out
}

type store struct {
	users map[string]user.User
	state

	saveErr  error
	stockErr map[string]error
	clearErr error

	stockCalls []string
	begins     int
	commits    int
	rollbacks  int
}

func newStore() *store {
	return &store{
		users: make(map[string]user.User),
		state: state{
			products: make(map[string]product.Product),
			carts:    make(map[string]cart.Cart),
			orders:   make(map[string]Order),
		},
		stockErr: make(map[string]error),
	}
}

func (s *store) FindByID(_ context.Context, id string) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.Addresses = slices.Clone(u.Addresses)
	return &u, nil
}

type fakeCarts struct{ *store }

func (f fakeCarts) FindByUserID(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := f.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (f fakeCarts) Clear(_ context.Context, cartID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	for k, c := range f.carts {
		if c.ID == cartID {
			c.Items = nil
			f.carts[k] = c
			return nil
		}
	}
	return cart.ErrNotFound
}

type fakeProducts struct{ *store }

func (f fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f fakeProducts) UpdateStock(_ context.Context, id string, delta int) error {
	f.stockCalls = append(f.stockCalls, id)
	if err := f.stockErr[id]; err != nil {
		return err
	}
	p, ok := f.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return product.ErrStockConflict
	}
	p.Stock += delta
	f.products[id] = p
	return nil
}

type fakeOrders struct{ *store }

func (f fakeOrders) Save(_ context.Context, o Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	o.Items = slices.Clone(o.Items)
	f.orders[o.ID] = o
	return nil
}

func (f fakeOrders) FindByID(_ context.Context, id string) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (f fakeOrders) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrConcurrentUpdate
	}
	o.Status = to
	o.UpdatedAt = at
	f.orders[id] = o
	return nil
}

type fakeTx struct{ *store }

func (t fakeTx) Orders() Repository            { return fakeOrders(t) }
func (t fakeTx) Products() product.StockWriter { return fakeProducts(t) }
func (t fakeTx) Carts() cart.Writer            { return fakeCarts(t) }

// fakeUoW restores the snapshot taken at begin when fn fails.
type fakeUoW struct{ *store }

func (u fakeUoW) WithTransaction(ctx context.Context, fn func(context.Context, Tx) error) error {
	u.begins++
	before := u.state.clone()
	if err := fn(ctx, fakeTx(u)); err != nil {
		u.state = before
		u.rollbacks++
		return err
	}
	u.commits++
	return nil
}

// --- Helpers ---

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(st *store) *Service {
	n := 0
	return NewService(st, fakeCarts{st}, fakeProducts{st}, fakeOrders{st}, fakeUoW{st},
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	homeAddr = user.Address{ID: "a-home", Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US", IsDefault: true}
	workAddr = user.Address{ID: "a-work", Street: "9 Office Rd", City: "Springfield", State: "IL", ZipCode: "62702", Country: "US"}
)

func (s *store) addUser(id string, addrs ...user.Address) {
	s.users[id] = user.User{ID: id, Email: id + "@example.com", Name: id, Addresses: addrs}
}

func (s *store) addProduct(id, name, price string, stock int) {
	s.products[id] = product.Product{ID: id, Name: name, Price: dec(price), Stock: stock, Active: true}
}

func (s *store) addCart(userID string, items ...cart.Item) {
	c := cart.Cart{ID: "cart-" + userID, UserID: userID}
	for i, it := range items {
		it.ID = fmt.Sprintf("ci-%d", i)
		it.CartID = c.ID
		c.Items = append(c.Items, it)
	}
	s.carts[userID] = c
}

func line(productID, price string, qty int) cart.Item {
	return cart.Item{ProductID: productID, ProductName: productID, Price: dec(price), Quantity: qty}
}

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	st := newStore()
	st.addUser("u1", workAddr, homeAddr)
	st.addProduct("p", "P", "50", 10)
	st.addCart("u1", line("p", "50", 2))

	o, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, dec("100").Equal(o.Total))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, homeAddr, o.ShippingAddress)
	assert.Equal(t, testNow, o.CreatedAt)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.Equal(t, "P", o.Items[0].ProductName)

	assert.Equal(t, 8, st.products["p"].Stock)
	assert.Empty(t, st.carts["u1"].Items)
	assert.Contains(t, st.orders, o.ID)
	assert.Equal(t, 1, st.commits)
	assert.Zero(t, st.rollbacks)
}

func TestPlaceOrder_TotalMatchesLines(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("a", "A", "6.50", 10)
	st.addProduct("b", "B", "0.99", 10)
	st.addProduct("c", "C", "12.25", 10)
	st.addCart("u1", line("a", "6.50", 3), line("b", "0.99", 7), line("c", "12.25", 1))

	o, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.PriceAtTime.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Equal(o.Total), "total %s != sum %s", o.Total, sum)
	assert.True(t, dec("38.68").Equal(o.Total))

	assert.Equal(t, 7, st.products["a"].Stock)
	assert.Equal(t, 3, st.products["b"].Stock)
	assert.Equal(t, 9, st.products["c"].Stock)
}

func TestPlaceOrder_UsesLivePrice(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P renamed", "55.00", 10)
	st.addCart("u1", line("p", "40.00", 2))

	o, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, dec("55.00").Equal(o.Items[0].PriceAtTime))
	assert.Equal(t, "P renamed", o.Items[0].ProductName)
	assert.True(t, dec("110.00").Equal(o.Total))
}

func TestPlaceOrder_OtherProductsUntouched(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addProduct("other", "Other", "1", 4)
	st.addCart("u1", line("p", "1", 1))

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 4, st.products["other"].Stock)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addCart("u1")

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.ErrorIs(t, err, cart.ErrEmpty)
	assert.Empty(t, st.orders)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_NoCart(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.ErrorIs(t, err, cart.ErrEmpty)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_NoAddress(t *testing.T) {
	st := newStore()
	st.addUser("u1")
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.ErrorIs(t, err, user.ErrNoShippingAddress)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_UnknownAddress(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1", ShippingAddressID: "other"})

	var anf *user.AddressNotFoundError
	require.ErrorAs(t, err, &anf)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_UserNotFound(t *testing.T) {
	st := newStore()

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "ghost"})
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestPlaceOrder_ProductGone(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addCart("u1", line("q", "1", 1))
	before := st.state.clone()

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})

	var gone *product.GoneError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, "Product q no longer exists", err.Error())
	assert.Equal(t, before, st.state)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.products["p"] = product.Product{ID: "p", Name: "P", Price: dec("1"), Stock: 10, Active: false}
	st.addCart("u1", line("p", "1", 1))

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})

	var ua *product.UnavailableError
	require.ErrorAs(t, err, &ua)
	assert.Zero(t, st.begins)
}

func TestPlaceOrder_FailFastNoPartialDecrement(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "50", 10)
	st.addProduct("r", "R", "5", 1)
	st.addCart("u1", line("p", "50", 2), line("r", "5", 5))
	before := st.state.clone()

	_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})

	var ise *product.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, `Not enough stock for "R". Available: 1`, err.Error())
	assert.Equal(t, 10, st.products["p"].Stock)
	assert.Empty(t, st.stockCalls)
	assert.Equal(t, before, st.state)
}

func TestPlaceOrder_ExplicitAddress(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr, workAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))

	o, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1", ShippingAddressID: workAddr.ID})
	require.NoError(t, err)
	assert.Equal(t, workAddr, o.ShippingAddress)
}

func TestPlaceOrder_AddressSnapshotImmutable(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))

	o, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	u := st.users["u1"]
	u.Addresses[0].Street = "42 Moved Ave"
	st.users["u1"] = u

	assert.Equal(t, "1 Main St", o.ShippingAddress.Street)
	assert.Equal(t, "1 Main St", st.orders[o.ID].ShippingAddress.Street)
}

func TestPlaceOrder_TransactionFailuresRollBack(t *testing.T) {
	saveErr := errors.New("insert orders: connection reset")
	clearErr := errors.New("delete cart_items: deadlock detected")
	stockErr := errors.New("update products: timeout")

	tests := []struct {
		name   string
		inject func(*store)
		want   error
	}{
		{"save", func(s *store) { s.saveErr = saveErr }, saveErr},
		{"second decrement", func(s *store) { s.stockErr["b"] = stockErr }, stockErr},
		{"clear", func(s *store) { s.clearErr = clearErr }, clearErr},
		{"stock race", func(s *store) { s.stockErr["b"] = product.ErrStockConflict }, product.ErrStockConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore()
			st.addUser("u1", homeAddr)
			st.addProduct("a", "A", "10", 5)
			st.addProduct("b", "B", "20", 5)
			st.addCart("u1", line("a", "10", 1), line("b", "20", 2))
			tt.inject(st)
			before := st.state.clone()

			_, err := newTestService(st).PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
			require.Error(t, err)
			assert.Same(t, tt.want, err, "transaction errors must not be wrapped")

			assert.Equal(t, before, st.state)
			assert.Equal(t, 1, st.rollbacks)
			assert.Zero(t, st.commits)
		})
	}
}

func TestGetOrder(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))
	svc := newTestService(st)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), "u1", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	_, err = svc.GetOrder(context.Background(), "u2", placed.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetOrder(context.Background(), "u1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_Restocks(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "50", 10)
	st.addCart("u1", line("p", "50", 2))
	svc := newTestService(st)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 8, st.products["p"].Stock)

	cancelled, err := svc.Cancel(context.Background(), "u1", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, placed.Total.Equal(cancelled.Total))
	assert.Equal(t, 10, st.products["p"].Stock)
	assert.Equal(t, StatusCancelled, st.orders[placed.ID].Status)

	_, err = svc.Cancel(context.Background(), "u1", placed.ID)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, 10, st.products["p"].Stock)
}

func TestCancel_DeletedProductSkipped(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))
	svc := newTestService(st)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)
	delete(st.products, "p")

	_, err = svc.Cancel(context.Background(), "u1", placed.ID)
	require.NoError(t, err)
}

func TestCancel_ForeignOrder(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))
	svc := newTestService(st)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), "intruder", placed.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusPending, st.orders[placed.ID].Status)
	assert.Equal(t, 9, st.products["p"].Stock)
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	st := newStore()
	st.addUser("u1", homeAddr)
	st.addProduct("p", "P", "1", 10)
	st.addCart("u1", line("p", "1", 1))
	svc := newTestService(st)

	placed, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u1"})
	require.NoError(t, err)

	for _, next := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		o, err := svc.UpdateStatus(context.Background(), placed.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, o.Status)
	}

	_, err = svc.UpdateStatus(context.Background(), placed.ID, StatusPending)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusDelivered, ite.From)
	assert.Equal(t, 9, st.products["p"].Stock)
}
