package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fjod/jewel_cart/internal/auth"
	"github.com/fjod/jewel_cart/internal/config"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/fjod/jewel_cart/internal/service"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// loadProducts parses and validates a seed file.
func loadProducts(r io.Reader) ([]domain.Product, error) {
	var products []domain.Product
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&products); err != nil {
		return nil, fmt.Errorf("invalid products file: %w", err)
	}

	seen := make(map[string]bool, len(products))
	for i, p := range products {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return nil, fmt.Errorf("product %d: id is required", i)
		case seen[p.ID]:
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		case strings.TrimSpace(p.Name) == "":
			return nil, fmt.Errorf("product %s: name is required", p.ID)
		case p.Stock < 0:
			return nil, fmt.Errorf("product %s: stock cannot be negative", p.ID)
		}
		if _, ok := p.ResolvePrice(nil); !ok {
			return nil, fmt.Errorf("product %s: %w", p.ID, service.ErrInvalidProduct)
		}
		seen[p.ID] = true
	}
	return products, nil
}

func seedCatalogCommand(c *cli.Context) error {
	f, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()

	products, err := loadProducts(f)
	if err != nil {
		return err
	}

	return withMongo(c, func(ctx context.Context, _ config.Config, db *mongo.Database, log *logger.Logger) error {
		repo := repository.NewProductRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			return err
		}
		for i := range products {
			if err := repo.UpsertProduct(ctx, &products[i]); err != nil {
				return err
			}
		}
		log.Info("catalog seeded", "products", len(products))
		return nil
	})
}

func createAdminCommand(c *cli.Context) error {
	return withMongo(c, func(ctx context.Context, _ config.Config, db *mongo.Database, log *logger.Logger) error {
		u := &domain.User{
			ID:    c.String("id"),
			Name:  c.String("name"),
			Email: c.String("email"),
			Phone: c.String("phone"),
			Role:  domain.RoleAdmin,
		}
		if err := repository.NewUserRepository(db).UpsertUser(ctx, u); err != nil {
			return err
		}
		log.Info("admin account saved", "user_id", u.ID, "email", u.Email)
		return nil
	})
}

func mintTokenCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	raw, err := tokens.Issue(c.String("user"), c.String("role"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, raw)
	return nil
}

func setStatusCommand(c *cli.Context) error {
	return withMongo(c, func(ctx context.Context, cfg config.Config, db *mongo.Database, log *logger.Logger) error {
		orders := service.NewOrderService(service.OrderDeps{
			Carts:    repository.NewCartRepository(db),
			Products: repository.NewProductRepository(db),
			Orders:   repository.NewOrderRepository(db),
			Users:    repository.NewUserRepository(db),
		}, service.OrderConfig{StatusRetries: cfg.Checkout.StatusRetries}, log)

		order, err := orders.UpdateStatus(ctx, c.String("id"), c.String("status"))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s is now %s\n", order.OrderNumber, order.Status)
		return nil
	})
}
