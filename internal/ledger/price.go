package ledger

import (
	"context"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/database"
	"cashbook/internal/models"
)

// AddPrice records the value of one unit of p.CommodityUID in
// p.CurrencyUID. A price for the same pair replaces the previous one.
func (tx *Tx) AddPrice(p *models.Price) error {
	return tx.savePrice(p, modeUpsert)
}

func (tx *Tx) savePrice(p *models.Price, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&p.UID)
	}
	if err := tx.check("price", p.UID, p); err != nil {
		return err
	}
	if p.Value.Sign() <= 0 {
		return &models.InvalidRecordError{Entity: "price", UID: p.UID, Reason: "value must be positive"}
	}
	if err := storable("price", p.UID, "value", p.Value); err != nil {
		return err
	}
	if _, err := tx.commodity(p.CommodityUID); err != nil {
		return err
	}
	if _, err := tx.commodity(p.CurrencyUID); err != nil {
		return err
	}

	found, err := tx.exists(&models.Price{}, p.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "price", p.UID, found); err != nil {
		return err
	}

	// last write wins per pair
	err = tx.db.Where("(commodity_uid = ? AND currency_uid = ?) OR uid = ?", p.CommodityUID, p.CurrencyUID, p.UID).
		Delete(&models.Price{}).Error
	if err != nil {
		return database.Classify("replace price", err)
	}
	p.ID = 0
	return database.Classify("insert price", tx.db.Create(p).Error)
}

// GetPrice loads one price.
func (tx *Tx) GetPrice(uid string) (*models.Price, error) {
	var p models.Price
	found, err := tx.findByUID(&p, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "price", UID: uid}
	}
	return &p, nil
}

// ListPrices returns every stored price.
func (tx *Tx) ListPrices() ([]models.Price, error) {
	var list []models.Price
	if err := tx.db.Order("commodity_uid, currency_uid").Find(&list).Error; err != nil {
		return nil, database.Classify("list prices", err)
	}
	return list, nil
}

// DeletePrice removes one price.
func (tx *Tx) DeletePrice(uid string) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	res := tx.db.Where("uid = ?", uid).Delete(&models.Price{})
	if res.Error != nil {
		return database.Classify("delete price", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Entity: "price", UID: uid}
	}
	return nil
}

// LatestPrice returns the most recent price for the pair dated at or
// before asOf, or nil when there is none.
func (tx *Tx) LatestPrice(commodityUID, currencyUID string, asOf time.Time) (*models.Price, error) {
	var p models.Price
	res := tx.db.Where("commodity_uid = ? AND currency_uid = ? AND date <= ?", commodityUID, currencyUID, models.UTC(asOf)).
		Order("date DESC").Limit(1).Find(&p)
	if res.Error != nil {
		return nil, database.Classify("find price", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

// ConversionRate returns how many units of to one unit of from is worth
// at asOf. A direct price is preferred; otherwise the inverse of the
// reverse pair is used. NoConversionRateError when neither exists.
func (tx *Tx) ConversionRate(from, to string, asOf time.Time) (amount.Amount, error) {
	if from == to {
		return amount.FromInt(1), nil
	}
	direct, err := tx.LatestPrice(from, to, asOf)
	if err != nil {
		return amount.Zero(), err
	}
	if direct != nil {
		return direct.Value, nil
	}
	reverse, err := tx.LatestPrice(to, from, asOf)
	if err != nil {
		return amount.Zero(), err
	}
	if reverse != nil && !reverse.Value.IsZero() {
		return reverse.Value.Inv()
	}
	return amount.Zero(), &models.NoConversionRateError{FromCommodityUID: from, ToCommodityUID: to}
}

// AddPrice is the single-operation form of Tx.AddPrice.
func (s *Store) AddPrice(ctx context.Context, p *models.Price) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.AddPrice(p) })
}

// ListPrices is the single-operation form of Tx.ListPrices.
func (s *Store) ListPrices(ctx context.Context) (list []models.Price, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListPrices()
		return err
	})
	return list, err
}

// DeletePrice is the single-operation form of Tx.DeletePrice.
func (s *Store) DeletePrice(ctx context.Context, uid string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.DeletePrice(uid) })
}
