// Package store persists order tracking state so expiry metadata and
// consumed thresholds survive process restarts.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dip-buyer-go/order"
)

// PendingOrderRow 在途限价单的持久化镜像，含过期元数据。
type PendingOrderRow struct {
	OrderID     int64 `gorm:"primaryKey"`
	Symbol      string
	Quantity    float64
	Price       float64
	Threshold   *float64
	SubmittedAt time.Time
	ExpiresAt   time.Time
}

// ConsumedThresholdRow 已消耗的 (symbol, threshold)。
type ConsumedThresholdRow struct {
	ID        uint   `gorm:"primaryKey"`
	Symbol    string `gorm:"index:idx_symbol_threshold,unique"`
	Threshold float64 `gorm:"index:idx_symbol_threshold,unique"`
}

// ArchivedOrderRow 终态订单归档，报表用，只增不删。
type ArchivedOrderRow struct {
	ID          uint `gorm:"primaryKey"`
	OrderID     int64
	Symbol      string
	Kind        string
	Status      string
	Quantity    float64
	Price       float64
	Threshold   *float64
	SubmittedAt time.Time
	ClosedAt    time.Time
}

// Store SQLite 持久层（纯 Go 驱动，无 cgo）。
type Store struct {
	db *gorm.DB
}

// Open 打开/创建数据库并迁移表结构。
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&PendingOrderRow{}, &ConsumedThresholdRow{}, &ArchivedOrderRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SavePending 写入/覆盖一条在途订单。
func (s *Store) SavePending(o order.Order) error {
	row := PendingOrderRow{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Quantity:    o.Quantity,
		Price:       o.Price,
		Threshold:   o.Threshold,
		SubmittedAt: o.SubmittedAt,
		ExpiresAt:   o.ExpiresAt,
	}
	return s.db.Save(&row).Error
}

// RemovePending 删除在途记录。不存在不算错。
func (s *Store) RemovePending(orderID int64) error {
	return s.db.Delete(&PendingOrderRow{}, "order_id = ?", orderID).Error
}

// Archive 追加归档记录。
func (s *Store) Archive(o order.Order) error {
	row := ArchivedOrderRow{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Kind:        string(o.Kind),
		Status:      string(o.Status),
		Quantity:    o.Quantity,
		Price:       o.Price,
		Threshold:   o.Threshold,
		SubmittedAt: o.SubmittedAt,
		ClosedAt:    time.Now(),
	}
	return s.db.Create(&row).Error
}

// SaveConsumed 记录一个已消耗阈值。重复写幂等。
func (s *Store) SaveConsumed(symbol string, threshold float64) error {
	row := ConsumedThresholdRow{Symbol: symbol, Threshold: threshold}
	err := s.db.Where("symbol = ? AND threshold = ?", symbol, threshold).
		FirstOrCreate(&row).Error
	return err
}

// ReplaceConsumed 日界重置：该 symbol 的消耗集合整体替换。
func (s *Store) ReplaceConsumed(symbol string, thresholds []float64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ConsumedThresholdRow{}, "symbol = ?", symbol).Error; err != nil {
			return err
		}
		for _, t := range thresholds {
			if err := tx.Create(&ConsumedThresholdRow{Symbol: symbol, Threshold: t}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPending 读出全部在途订单。
func (s *Store) LoadPending() ([]order.Order, error) {
	var rows []PendingOrderRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	orders := make([]order.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, order.Order{
			ID:          r.OrderID,
			Symbol:      r.Symbol,
			Side:        "BUY",
			Quantity:    r.Quantity,
			Price:       r.Price,
			Kind:        order.KindLimit,
			Status:      order.StatusPending,
			Threshold:   r.Threshold,
			SubmittedAt: r.SubmittedAt,
			ExpiresAt:   r.ExpiresAt,
		})
	}
	return orders, nil
}

// LoadConsumed 读出全部已消耗阈值。
func (s *Store) LoadConsumed() (map[string][]float64, error) {
	var rows []ConsumedThresholdRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	consumed := make(map[string][]float64)
	for _, r := range rows {
		consumed[r.Symbol] = append(consumed[r.Symbol], r.Threshold)
	}
	return consumed, nil
}
