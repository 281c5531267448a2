package customers

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/internal/testdb"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testdb.New(t)
	return NewService(db), db
}

func seedCustomer(t *testing.T, svc *Service, email string) *domain.Customer {
	t.Helper()
	customer, err := svc.CreateCustomer(context.Background(), CustomerInput{
		Name:  "Jamie Rivera",
		Email: email,
		Phone: "+15550100",
	})
	require.NoError(t, err)
	return customer
}

func testAddress(isDefault bool) AddressInput {
	return AddressInput{
		Label:         "home",
		RecipientName: "Jamie Rivera",
		Phone:         "+15550100",
		StreetAddress: "12 Main St",
		City:          "Springfield",
		State:         "IL",
		PostalCode:    "62701",
		Country:       "US",
		IsDefault:     isDefault,
	}
}

// defaultCount returns how many of the customer's addresses carry the
// default flag.
func defaultCount(t *testing.T, db *gorm.DB, customerID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Address{}).
		Where("customer_id = ? AND is_default = ?", customerID, true).
		Count(&n).Error)
	return n
}

func TestCreateCustomerUniqueEmail(t *testing.T) {
	svc, _ := newTestService(t)
	seedCustomer(t, svc, "jamie@example.com")

	// email comparison is case-insensitive
	_, err := svc.CreateCustomer(context.Background(), CustomerInput{
		Name: "Other", Email: "JAMIE@example.com",
	})
	assert.True(t, errors.Is(err, errs.ErrUniquenessConflict))

	_, err = svc.CreateCustomer(context.Background(), CustomerInput{Name: "", Email: "x@example.com"})
	assert.True(t, errs.IsValidation(err))
	_, err = svc.CreateCustomer(context.Background(), CustomerInput{Name: "X", Email: "  "})
	assert.True(t, errs.IsValidation(err))
}

func TestFirstAddressBecomesDefault(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, svc, "first@example.com")

	// explicitly non-default, promoted anyway
	first, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))
}

func TestAddDefaultAddressClearsOthers(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, svc, "add@example.com")

	first, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)

	second, err := svc.AddAddress(context.Background(), customer.ID, testAddress(true))
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	var stored domain.Address
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.False(t, stored.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	// a later non-default address leaves the default alone
	_, err = svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)
	stored = domain.Address{}
	require.NoError(t, db.First(&stored, second.ID).Error)
	assert.True(t, stored.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))
}

func TestAddAddressUnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddAddress(context.Background(), 424242, testAddress(true))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestUpdateAddressMovesDefault(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, svc, "update@example.com")

	first, err := svc.AddAddress(context.Background(), customer.ID, testAddress(true))
	require.NoError(t, err)
	second, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)

	in := testAddress(true)
	in.City = "Portland"
	updated, err := svc.UpdateAddress(context.Background(), second.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)
	assert.Equal(t, "Portland", updated.City)

	var stored domain.Address
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.False(t, stored.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	// updating the default with IsDefault false does not silently
	// drop the flag
	in = testAddress(false)
	updated, err = svc.UpdateAddress(context.Background(), second.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))
}

func TestDeleteDefaultPromotesSuccessor(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, svc, "delete@example.com")

	first, err := svc.AddAddress(context.Background(), customer.ID, testAddress(true))
	require.NoError(t, err)
	second, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)
	third, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAddress(context.Background(), first.ID))

	// oldest remaining address takes over
	var stored domain.Address
	require.NoError(t, db.First(&stored, second.ID).Error)
	assert.True(t, stored.IsDefault)
	stored = domain.Address{}
	require.NoError(t, db.First(&stored, third.ID).Error)
	assert.False(t, stored.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	// deleting a non-default leaves the default untouched
	require.NoError(t, svc.DeleteAddress(context.Background(), third.ID))
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	// deleting the last address is fine
	require.NoError(t, svc.DeleteAddress(context.Background(), second.ID))
	assert.EqualValues(t, 0, defaultCount(t, db, customer.ID))

	err = svc.DeleteAddress(context.Background(), second.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestSetDefaultAddress(t *testing.T) {
	svc, db := newTestService(t)
	customer := seedCustomer(t, svc, "setdefault@example.com")

	first, err := svc.AddAddress(context.Background(), customer.ID, testAddress(true))
	require.NoError(t, err)
	second, err := svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)

	require.NoError(t, svc.SetDefaultAddress(context.Background(), second.ID))

	var stored domain.Address
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.False(t, stored.IsDefault)
	stored = domain.Address{}
	require.NoError(t, db.First(&stored, second.ID).Error)
	assert.True(t, stored.IsDefault)
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	// setting the current default again is a no-op
	require.NoError(t, svc.SetDefaultAddress(context.Background(), second.ID))
	assert.EqualValues(t, 1, defaultCount(t, db, customer.ID))

	err = svc.SetDefaultAddress(context.Background(), 424242)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestGetCustomerWithAddresses(t *testing.T) {
	svc, _ := newTestService(t)
	customer := seedCustomer(t, svc, "get@example.com")
	_, err := svc.AddAddress(context.Background(), customer.ID, testAddress(true))
	require.NoError(t, err)
	_, err = svc.AddAddress(context.Background(), customer.ID, testAddress(false))
	require.NoError(t, err)

	stored, addresses, err := svc.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jamie Rivera", stored.Name)
	assert.Len(t, addresses, 2)

	_, _, err = svc.GetCustomer(context.Background(), 424242)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
