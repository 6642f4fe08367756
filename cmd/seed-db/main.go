// Command seed-db loads a demo catalog, shoppers and carts into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type seedProduct struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Stock  int
	Active bool
}

type seedAddress struct {
	ID, Street, City, State, ZipCode, Country string
	Default                                   bool
}

type seedLine struct {
	ProductID string
	Quantity  int
}

type seedUser struct {
	ID        string
	Email     string
	Name      string
	Addresses []seedAddress
	Cart      []seedLine
}

type catalog struct {
	Products []seedProduct
	Users    []seedUser
}

func main() {
	var (
		databaseURL string
		catalogFile string
		jwtSecret   string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "print bearer tokens signed with this secret (or KART_JWT_SECRET env)")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed tokens")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("KART_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := loadCatalog(catalogFile)
	if err != nil {
		lg.Fatal("Load catalog", zap.Error(err))
	}
	if err := run(ctx, lg, databaseURL, c); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")

	if jwtSecret == "" {
		return
	}
	sec := handler.NewSecurityHandler([]byte(jwtSecret))
	for _, u := range c.Users {
		token, err := sec.IssueToken(u.ID, "", tokenTTL)
		if err != nil {
			lg.Fatal("Issue token", zap.Error(err))
		}
		lg.Info("Shopper token", zap.String("user_id", u.ID), zap.String("token", token))
	}
	admin, err := sec.IssueToken("admin", handler.RoleAdmin, tokenTTL)
	if err != nil {
		lg.Fatal("Issue token", zap.Error(err))
	}
	lg.Info("Admin token", zap.String("token", admin))
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, c catalog) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, p := range c.Products {
			if _, err := tx.Exec(ctx, `INSERT INTO products (id, name, price, stock, active)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET name = $2, price = $3, stock = $4, active = $5`,
				p.ID, p.Name, p.Price, p.Stock, p.Active,
			); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
		}
		lg.Info("Upserted products", zap.Int("count", len(c.Products)))

		for _, u := range c.Users {
			if err := seedShopper(ctx, tx, u); err != nil {
				return errors.Wrapf(err, "seed user %s", u.ID)
			}
			lg.Info("Seeded shopper",
				zap.String("user_id", u.ID),
				zap.Int("addresses", len(u.Addresses)),
				zap.Int("cart_lines", len(u.Cart)),
			)
		}
		return nil
	})
}

// seedShopper upserts the user and replaces their addresses and cart.
func seedShopper(ctx context.Context, tx pgx.Tx, u seedUser) error {
	if _, err := tx.Exec(ctx, `INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = $2, name = $3`, u.ID, u.Email, u.Name); err != nil {
		return errors.Wrap(err, "upsert user")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM addresses WHERE user_id = $1`, u.ID); err != nil {
		return errors.Wrap(err, "clear addresses")
	}
	for _, a := range u.Addresses {
		if _, err := tx.Exec(ctx, `INSERT INTO addresses (id, user_id, street, city, state, zip_code, country, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, u.ID, a.Street, a.City, a.State, a.ZipCode, a.Country, a.Default,
		); err != nil {
			return errors.Wrapf(err, "insert address %s", a.ID)
		}
	}

	var cartID string
	if err := tx.QueryRow(ctx, `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id`, uuid.NewString(), u.ID).Scan(&cartID); err != nil {
		return errors.Wrap(err, "upsert cart")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	for _, l := range u.Cart {
		// The cart remembers the catalog price at the time the item was added.
		if _, err := tx.Exec(ctx, `INSERT INTO cart_items (id, cart_id, product_id, price, quantity)
			SELECT $1, $2, $3, COALESCE((SELECT price FROM products WHERE id = $3), 0), $4`,
			uuid.NewString(), cartID, l.ProductID, l.Quantity,
		); err != nil {
			return errors.Wrapf(err, "insert cart item %s", l.ProductID)
		}
	}
	return nil
}

func loadCatalog(path string) (catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog{}, errors.Wrap(err, "read catalog file")
	}

	var c catalog
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				c.Products = append(c.Products, p)
				return err
			})
		case "users":
			return d.Arr(func(d *jx.Decoder) error {
				u, err := decodeUser(d)
				c.Users = append(c.Users, u)
				return err
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return catalog{}, errors.Wrap(err, "parse catalog")
	}
	return c, nil
}

func decodeProduct(d *jx.Decoder) (seedProduct, error) {
	p := seedProduct{Active: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "stock":
			p.Stock, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return p, errors.Wrapf(err, "product %q", p.ID)
}

func decodeUser(d *jx.Decoder) (seedUser, error) {
	var u seedUser
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			u.ID, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		case "name":
			u.Name, err = d.Str()
		case "addresses":
			err = d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAddress(d)
				u.Addresses = append(u.Addresses, a)
				return err
			})
		case "cart":
			err = d.Arr(func(d *jx.Decoder) error {
				var l seedLine
				err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "productId":
						l.ProductID, err = d.Str()
					case "quantity":
						l.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				u.Cart = append(u.Cart, l)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return u, errors.Wrapf(err, "user %q", u.ID)
}

func decodeAddress(d *jx.Decoder) (seedAddress, error) {
	var a seedAddress
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			a.ID, err = d.Str()
		case "street":
			a.Street, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "zipCode":
			a.ZipCode, err = d.Str()
		case "country":
			a.Country, err = d.Str()
		case "default":
			a.Default, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}
