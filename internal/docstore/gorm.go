package docstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormCollection stores each document as one row of the table GORM maps T to.
type gormCollection[T any] struct {
	db        *gorm.DB
	name      string
	keyColumn string
	keyOf     KeyFunc[T]
}

// NewGormCollection creates a GORM-backed collection. keyColumn must be the
// primary key column of T's table.
func NewGormCollection[T any](db *gorm.DB, name, keyColumn string, keyOf KeyFunc[T]) Collection[T] {
	return &gormCollection[T]{db: db, name: name, keyColumn: keyColumn, keyOf: keyOf}
}

func (c *gormCollection[T]) byKey(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: c.keyColumn}, Value: key}
}

func (c *gormCollection[T]) Get(ctx context.Context, key string) (*T, error) {
	var doc T
	if err := c.db.WithContext(ctx).Where(c.byKey(key)).First(&doc).Error; err != nil {
		return nil, c.wrap("get", key, err)
	}
	return &doc, nil
}

func (c *gormCollection[T]) Set(ctx context.Context, doc *T) error {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: c.keyColumn}},
		UpdateAll: true,
	}).Create(doc).Error
	if err != nil {
		return c.wrap("set", c.keyOf(doc), err)
	}
	return nil
}

func (c *gormCollection[T]) Update(ctx context.Context, key string, fields Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("update %s/%s: no fields given", c.name, key)
	}
	res := c.db.WithContext(ctx).Model(new(T)).Where(c.byKey(key)).Updates(map[string]any(fields))
	if res.Error != nil {
		return c.wrap("update", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return c.wrap("update", key, gorm.ErrRecordNotFound)
	}
	return nil
}

func (c *gormCollection[T]) Delete(ctx context.Context, key string) error {
	res := c.db.WithContext(ctx).Where(c.byKey(key)).Delete(new(T))
	if res.Error != nil {
		return c.wrap("delete", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return c.wrap("delete", key, gorm.ErrRecordNotFound)
	}
	return nil
}

func (c *gormCollection[T]) List(ctx context.Context) ([]T, error) {
	var docs []T
	err := c.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: c.keyColumn}}).
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", c.name, ErrUnavailable, err)
	}
	return docs, nil
}

// Mutate locks the row for the duration of fn (SELECT ... FOR UPDATE where
// the dialect supports it) and saves the result in the same transaction.
func (c *gormCollection[T]) Mutate(ctx context.Context, key string, fn func(doc *T) error) error {
	var fnErr error
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc T
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(c.byKey(key)).First(&doc).Error; err != nil {
			return c.wrap("mutate", key, err)
		}
		if err := fn(&doc); err != nil {
			fnErr = err
			return err
		}
		if got := c.keyOf(&doc); got != key {
			return fmt.Errorf("mutate %s/%s: %w (now %q)", c.name, key, errKeyChanged, got)
		}
		if err := tx.Save(&doc).Error; err != nil {
			return c.wrap("mutate", key, err)
		}
		return nil
	})
	switch {
	case fnErr != nil:
		return fnErr
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnavailable), errors.Is(err, errKeyChanged):
		return err
	default:
		// BEGIN or COMMIT failed.
		return c.wrap("mutate", key, err)
	}
}

func (c *gormCollection[T]) wrap(op, key string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s/%s: %w", op, c.name, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w: %w", op, c.name, key, ErrUnavailable, err)
}
