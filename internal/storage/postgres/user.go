package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, email, name FROM users WHERE id = $1`

	listAddressesSQL = `SELECT id, street, city, state, zip_code, country, is_default
	FROM addresses
	WHERE user_id = $1
	ORDER BY is_default DESC, id`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db DBTX
}

// NewUserRepository returns a UserRepository that uses the given connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads a user together with all saved addresses.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.db.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Email, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %s", id)
	}

	rows, err := r.db.Query(ctx, listAddressesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list addresses of %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var a user.Address
		if err := rows.Scan(&a.ID, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country, &a.IsDefault); err != nil {
			return nil, errors.Wrap(err, "scan address")
		}
		u.Addresses = append(u.Addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate addresses")
	}

	return &u, nil
}
