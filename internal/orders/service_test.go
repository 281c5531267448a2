package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/internal/testdb"
	"github.com/openmerce/openmerce/pkg/common"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testdb.New(t)
	return NewService(db, nil), db
}

func seedCustomer(t *testing.T, db *gorm.DB) *domain.Customer {
	t.Helper()
	customer := &domain.Customer{
		ID:    common.UUIDint64(),
		Name:  "Jordan Buyer",
		Email: fmt.Sprintf("buyer-%d@example.com", common.UUIDint64()),
	}
	require.NoError(t, db.Create(customer).Error)
	return customer
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price int64, stock int, tracked bool) *domain.Product {
	t.Helper()
	id := common.UUIDint64()
	product := &domain.Product{
		ID:             id,
		Name:           name,
		Slug:           fmt.Sprintf("%s-%d", common.Slugify(name), id),
		Sku:            fmt.Sprintf("SKU-%d", id),
		Price:          price,
		StockQuantity:  stock,
		TrackInventory: tracked,
		IsActive:       true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func currentStock(t *testing.T, db *gorm.DB, productID int64) int {
	t.Helper()
	var product domain.Product
	require.NoError(t, db.First(&product, productID).Error)
	return product.StockQuantity
}

func testShippingAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		RecipientName: "Jordan Buyer",
		Phone:         "555-0100",
		StreetAddress: "1 Commerce Way",
		City:          "Springfield",
		PostalCode:    "12345",
		Country:       "US",
	}
}

func assertTotalInvariant(t *testing.T, o *domain.Order) {
	t.Helper()
	assert.Equal(t, o.Total, o.Subtotal+o.Tax+o.ShippingFee-o.Discount,
		"total must equal subtotal + tax + shipping - discount")
}

func TestPlaceOrderComputesTotals(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	widget := seedProduct(t, db, "Widget", 1999, 10, true)
	gadget := seedProduct(t, db, "Gadget", 500, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: customer.ID,
		Items: []LineItem{
			{ProductID: widget.ID, Quantity: 2},
			{ProductID: gadget.ID, Quantity: 3},
		},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
		ShippingFee:     250,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2*1999+3*500), order.Subtotal)
	assert.Equal(t, order.Subtotal+250, order.Total)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.NotEmpty(t, order.OrderNumber)
	assertTotalInvariant(t, order)

	require.Len(t, order.Items, 2)
	assert.Equal(t, "Widget", order.Items[0].ProductName)
	assert.Equal(t, widget.Sku, order.Items[0].ProductSku)
	assert.Equal(t, int64(1999), order.Items[0].Price)
	assert.Equal(t, int64(2*1999), order.Items[0].Subtotal)

	assert.Equal(t, 8, currentStock(t, db, widget.ID))
	assert.Equal(t, 7, currentStock(t, db, gadget.ID))

	// persisted header must match the returned value
	stored, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Total, stored.Total)
	assertTotalInvariant(t, stored)
}

func TestPlaceOrderInsufficientStockRollsBackEverything(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	ample := seedProduct(t, db, "Ample", 1000, 100, true)
	scarce := seedProduct(t, db, "Scarce", 2000, 2, true)

	// ample is decremented first, then scarce fails; the whole
	// transaction must roll back including ample's decrement.
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: customer.ID,
		Items: []LineItem{
			{ProductID: ample.ID, Quantity: 1},
			{ProductID: scarce.ID, Quantity: 3},
		},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.Error(t, err)

	var insufficient *errs.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "Scarce", insufficient.Product)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)

	assert.Equal(t, 100, currentStock(t, db, ample.ID))
	assert.Equal(t, 2, currentStock(t, db, scarce.ID))

	var orderCount, itemCount int64
	require.NoError(t, db.Model(&domain.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&domain.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	ample := seedProduct(t, db, "Ample", 1000, 100, true)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: customer.ID,
		Items: []LineItem{
			{ProductID: ample.ID, Quantity: 1},
			{ProductID: 424242, Quantity: 1},
		},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.True(t, errors.Is(err, errs.ErrNotFound))

	assert.Equal(t, 100, currentStock(t, db, ample.ID))
	var orderCount int64
	require.NoError(t, db.Model(&domain.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestPlaceOrderUnknownCustomer(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, "Widget", 1000, 5, true)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      999999,
		Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestPlaceOrderValidation(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 5, true)

	cases := []struct {
		name string
		in   PlaceOrderInput
	}{
		{"no items", PlaceOrderInput{
			CustomerID:      customer.ID,
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
		{"zero quantity", PlaceOrderInput{
			CustomerID:      customer.ID,
			Items:           []LineItem{{ProductID: product.ID, Quantity: 0}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
		{"bad payment method", PlaceOrderInput{
			CustomerID:      customer.ID,
			Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   "barter",
		}},
		{"missing address field", PlaceOrderInput{
			CustomerID: customer.ID,
			Items:      []LineItem{{ProductID: product.ID, Quantity: 1}},
			ShippingAddress: domain.ShippingAddress{
				RecipientName: "Jordan", Phone: "555", StreetAddress: "1 Way",
				City: "Springfield", PostalCode: "12345",
			},
			PaymentMethod: domain.PaymentMethodCOD,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tc.in)
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// validation happens before any write
	assert.Equal(t, 5, currentStock(t, db, product.ID))
}

func TestPlaceOrderUntrackedProductSkipsStock(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	virtual := seedProduct(t, db, "Ebook", 900, 0, false)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      customer.ID,
		Items:           []LineItem{{ProductID: virtual.ID, Quantity: 4}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCreditCard,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4*900), order.Total)
	assert.Equal(t, 0, currentStock(t, db, virtual.ID))
}

func TestCancelRestoresStock(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      customer.ID,
		Items:           []LineItem{{ProductID: product.ID, Quantity: 4}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	require.Equal(t, 6, currentStock(t, db, product.ID))

	cancelled, err := svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, currentStock(t, db, product.ID))
	assertTotalInvariant(t, cancelled)
}

func TestCancelGating(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 10, true)

	for _, status := range []string{
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	} {
		t.Run(status, func(t *testing.T) {
			order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
				CustomerID:      customer.ID,
				Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
				ShippingAddress: testShippingAddress(),
				PaymentMethod:   domain.PaymentMethodCOD,
			})
			require.NoError(t, err)
			stockAfterPlace := currentStock(t, db, product.ID)

			require.NoError(t, db.Model(&domain.Order{}).
				Where("id = ?", order.ID).Update("status", status).Error)

			_, err = svc.CancelOrder(context.Background(), order.ID)
			var transition *errs.InvalidStateTransitionError
			require.True(t, errors.As(err, &transition))
			assert.Equal(t, status, transition.From)

			// rows unchanged: no restock, status untouched
			assert.Equal(t, stockAfterPlace, currentStock(t, db, product.ID))
			var stored domain.Order
			require.NoError(t, db.First(&stored, order.ID).Error)
			assert.Equal(t, status, stored.Status)
		})
	}
}

func TestCancelSkipsRemovedProduct(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	keep := seedProduct(t, db, "Keep", 1000, 10, true)
	gone := seedProduct(t, db, "Gone", 2000, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: customer.ID,
		Items: []LineItem{
			{ProductID: keep.ID, Quantity: 2},
			{ProductID: gone.ID, Quantity: 3},
		},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.NoError(t, err)

	require.NoError(t, db.Delete(&domain.Product{}, gone.ID).Error)

	_, err = svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, currentStock(t, db, keep.ID))
}

func TestPlaceThenCancelConservesStock(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 7, true)

	for i := 0; i < 3; i++ {
		order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
			CustomerID:      customer.ID,
			Items:           []LineItem{{ProductID: product.ID, Quantity: 2}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		})
		require.NoError(t, err)
		_, err = svc.CancelOrder(context.Background(), order.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 7, currentStock(t, db, product.ID))
}

func TestSequentialOversellRejected(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 5, true)

	place := func(qty int) error {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
			CustomerID:      customer.ID,
			Items:           []LineItem{{ProductID: product.ID, Quantity: qty}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		})
		return err
	}

	require.NoError(t, place(3))
	err := place(3)
	var insufficient *errs.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 2, currentStock(t, db, product.ID))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Hot Item", 1500, 5, true)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
				CustomerID:      customer.ID,
				Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
				ShippingAddress: testShippingAddress(),
				PaymentMethod:   domain.PaymentMethodCOD,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}

	final := currentStock(t, db, product.ID)
	assert.GreaterOrEqual(t, final, 0, "stock must never go negative")
	assert.LessOrEqual(t, successes, 5)
	assert.Equal(t, 5-successes, final, "every committed order accounts for exactly its quantity")
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      customer.ID,
		Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	require.NotNil(t, updated.ShippedAt)

	// skipping backwards is rejected
	_, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusProcessing)
	var transition *errs.InvalidStateTransitionError
	require.True(t, errors.As(err, &transition))

	updated, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)

	// refund is always reachable as an explicit administrative action
	updated, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusPending)
	require.Error(t, err)

	_, err = svc.UpdateStatus(context.Background(), order.ID, "misplaced")
	assert.True(t, errs.IsValidation(err))
}

func TestUpdateStatusCancelledRestocksThroughCancel(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      customer.ID,
		Items:           []LineItem{{ProductID: product.ID, Quantity: 5}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	require.Equal(t, 5, currentStock(t, db, product.ID))

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 10, currentStock(t, db, product.ID))
}

func TestMarkPaid(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 10, true)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID:      customer.ID,
		Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	_, err = svc.MarkPaid(context.Background(), order.ID)
	assert.True(t, errs.IsValidation(err))
}

func TestListFilters(t *testing.T) {
	svc, db := newTestService(t)
	alice := seedCustomer(t, db)
	bob := seedCustomer(t, db)
	product := seedProduct(t, db, "Widget", 1000, 100, true)

	place := func(customerID int64) *domain.Order {
		order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
			CustomerID:      customerID,
			Items:           []LineItem{{ProductID: product.ID, Quantity: 1}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		})
		require.NoError(t, err)
		return order
	}

	place(alice.ID)
	place(alice.ID)
	bobOrder := place(bob.ID)
	_, err := svc.CancelOrder(context.Background(), bobOrder.ID)
	require.NoError(t, err)

	rows, total, err := svc.List(context.Background(), ListFilter{CustomerID: alice.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	rows, total, err = svc.List(context.Background(), ListFilter{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, bobOrder.ID, rows[0].ID)

	rows, _, err = svc.List(context.Background(), ListFilter{FromDate: "2000-01-01", ToDate: "2100-01-01"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, total, err = svc.List(context.Background(), ListFilter{FromDate: "2100-01-01"})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = svc.List(context.Background(), ListFilter{FromDate: "not a date"})
	assert.True(t, errs.IsValidation(err))
}
