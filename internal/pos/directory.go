package pos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"branchpos/internal/database/models"
)

// UserRef is the slice of a user record the order flows need.
type UserRef struct {
	ID       int64
	Name     string
	Role     models.Role
	BranchId int64
	Active   bool
}

type TableRef struct {
	ID       int64
	Number   string
	BranchId int64
}

type MenuItemRef struct {
	ID       int64
	Name     string
	Price    string
	BranchId int64
}

// UserLookup resolves operator references. Implementations return (nil, nil)
// when the user does not exist; an error means the lookup itself failed.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (*UserRef, error)
}

type TableLookup interface {
	TableByID(ctx context.Context, id int64) (*TableRef, error)
}

type MenuLookup interface {
	MenuItemByID(ctx context.Context, id int64) (*MenuItemRef, error)
}

// Directory is the gorm-backed implementation of the lookup interfaces.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) UserByID(ctx context.Context, id int64) (*UserRef, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &UserRef{
		ID:       user.ID,
		Name:     user.FullName(),
		Role:     user.Role,
		BranchId: user.BranchId,
		Active:   user.IsActive,
	}, nil
}

func (d *Directory) TableByID(ctx context.Context, id int64) (*TableRef, error) {
	var table models.Table
	err := d.db.WithContext(ctx).First(&table, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &TableRef{ID: table.ID, Number: table.TableNumber, BranchId: table.BranchId}, nil
}

func (d *Directory) MenuItemByID(ctx context.Context, id int64) (*MenuItemRef, error) {
	var item models.MenuItem
	err := d.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &MenuItemRef{ID: item.ID, Name: item.Name, Price: item.Price, BranchId: item.BranchId}, nil
}
