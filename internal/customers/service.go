package customers

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmerce/openmerce/internal/domain"
	"github.com/openmerce/openmerce/internal/errs"
	"github.com/openmerce/openmerce/pkg/common"
)

// Service manages customers and their addresses. The address rules
// keep exactly one default address per customer with at least one
// address, and they hold across any create/update/delete sequence.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CustomerInput carries customer create/update fields.
type CustomerInput struct {
	Name   string
	Email  string
	Phone  string
	Remark string
}

// CreateCustomer inserts a customer with a unique email.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*domain.Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errs.Validationf("name", "is required")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, errs.Validationf("email", "is required")
	}

	customer := &domain.Customer{
		ID:     common.UUIDint64(),
		Name:   strings.TrimSpace(in.Name),
		Email:  email,
		Phone:  strings.TrimSpace(in.Phone),
		Remark: in.Remark,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Customer{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check email")
		}
		if n > 0 {
			return errors.Wrapf(errs.ErrUniquenessConflict, "email %q", email)
		}
		return errors.Wrap(tx.Create(customer).Error, "create customer")
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// GetCustomer loads a customer with addresses.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*domain.Customer, []*domain.Address, error) {
	var customer domain.Customer
	err := s.db.WithContext(ctx).First(&customer, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, errors.Wrapf(errs.ErrNotFound, "customer %d", id)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "load customer")
	}

	var addresses []*domain.Address
	err = s.db.WithContext(ctx).Where("customer_id = ?", id).
		Order("id ASC").Find(&addresses).Error
	if err != nil {
		return nil, nil, errors.Wrap(err, "load addresses")
	}
	return &customer, addresses, nil
}

// AddressInput carries address create/update fields.
type AddressInput struct {
	Label         string
	RecipientName string
	Phone         string
	StreetAddress string
	City          string
	State         string
	PostalCode    string
	Country       string
	IsDefault     bool
}

func (in *AddressInput) validate() error {
	for field, v := range map[string]string{
		"recipient_name": in.RecipientName,
		"phone":          in.Phone,
		"street_address": in.StreetAddress,
		"city":           in.City,
		"postal_code":    in.PostalCode,
		"country":        in.Country,
	} {
		if strings.TrimSpace(v) == "" {
			return errs.Validationf(field, "is required")
		}
	}
	return nil
}

// AddAddress creates an address. A customer's first address always
// becomes the default; otherwise, when the new address is marked
// default, every other default is cleared first in the same
// transaction.
func (s *Service) AddAddress(ctx context.Context, customerID int64, in AddressInput) (*domain.Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	address := &domain.Address{
		ID:            common.UUIDint64(),
		CustomerID:    customerID,
		Label:         in.Label,
		RecipientName: in.RecipientName,
		Phone:         in.Phone,
		StreetAddress: in.StreetAddress,
		City:          in.City,
		State:         in.State,
		PostalCode:    in.PostalCode,
		Country:       in.Country,
		IsDefault:     in.IsDefault,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer domain.Customer
		if err := tx.First(&customer, customerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "customer %d", customerID)
			}
			return errors.Wrap(err, "load customer")
		}

		var existing int64
		if err := tx.Model(&domain.Address{}).Where("customer_id = ?", customerID).Count(&existing).Error; err != nil {
			return errors.Wrap(err, "count addresses")
		}
		if existing == 0 {
			address.IsDefault = true
		} else if address.IsDefault {
			if err := tx.Model(&domain.Address{}).Where("customer_id = ?", customerID).
				Update("is_default", false).Error; err != nil {
				return errors.Wrap(err, "clear defaults")
			}
		}

		return errors.Wrap(tx.Create(address).Error, "create address")
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

// UpdateAddress applies changes. Setting IsDefault clears it on all
// other addresses of the same customer before the update lands.
func (s *Service) UpdateAddress(ctx context.Context, addressID int64, in AddressInput) (*domain.Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var address domain.Address
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&address, addressID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "address %d", addressID)
			}
			return errors.Wrap(err, "load address")
		}

		if in.IsDefault && !address.IsDefault {
			if err := tx.Model(&domain.Address{}).
				Where("customer_id = ? AND id <> ?", address.CustomerID, addressID).
				Update("is_default", false).Error; err != nil {
				return errors.Wrap(err, "clear defaults")
			}
		}

		address.Label = in.Label
		address.RecipientName = in.RecipientName
		address.Phone = in.Phone
		address.StreetAddress = in.StreetAddress
		address.City = in.City
		address.State = in.State
		address.PostalCode = in.PostalCode
		address.Country = in.Country
		if in.IsDefault {
			address.IsDefault = true
		}

		return errors.Wrap(tx.Save(&address).Error, "update address")
	})
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// DeleteAddress removes an address. When the default address is
// deleted and others remain, the first remaining one is promoted
// inside the same transaction so the customer never ends up without a
// default.
func (s *Service) DeleteAddress(ctx context.Context, addressID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var address domain.Address
		if err := tx.First(&address, addressID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "address %d", addressID)
			}
			return errors.Wrap(err, "load address")
		}

		if address.IsDefault {
			var successor domain.Address
			err := tx.Where("customer_id = ? AND id <> ?", address.CustomerID, addressID).
				Order("id ASC").First(&successor).Error
			switch {
			case err == nil:
				if err := tx.Model(&domain.Address{}).Where("id = ?", successor.ID).
					Update("is_default", true).Error; err != nil {
					return errors.Wrap(err, "promote successor default")
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				// last address, nothing to promote
			default:
				return errors.Wrap(err, "find successor")
			}
		}

		return errors.Wrap(tx.Delete(&address).Error, "delete address")
	})
}

// SetDefaultAddress marks one address as the customer's default and
// clears every other one transactionally.
func (s *Service) SetDefaultAddress(ctx context.Context, addressID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var address domain.Address
		if err := tx.First(&address, addressID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(errs.ErrNotFound, "address %d", addressID)
			}
			return errors.Wrap(err, "load address")
		}
		if err := tx.Model(&domain.Address{}).
			Where("customer_id = ? AND id <> ?", address.CustomerID, addressID).
			Update("is_default", false).Error; err != nil {
			return errors.Wrap(err, "clear defaults")
		}
		return errors.Wrap(tx.Model(&domain.Address{}).Where("id = ?", addressID).
			Update("is_default", true).Error, "set default")
	})
}
