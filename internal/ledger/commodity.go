package ledger

import (
	"context"

	"cashbook/internal/database"
	"cashbook/internal/models"
)

// SaveCommodity inserts c or updates the commodity with the same uid.
func (tx *Tx) SaveCommodity(c *models.Commodity) error {
	return tx.saveCommodity(c, modeUpsert)
}

func (tx *Tx) saveCommodity(c *models.Commodity, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&c.UID)
	}
	if c.Namespace == "" {
		c.Namespace = models.NamespaceISO4217
	}
	if err := tx.check("commodity", c.UID, c); err != nil {
		return err
	}

	var cur models.Commodity
	found, err := tx.findByUID(&cur, c.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "commodity", c.UID, found); err != nil {
		return err
	}

	if !found {
		c.ID = 0
		return database.Classify("insert commodity", tx.db.Create(c).Error)
	}

	if !sameCommodity(&cur, c) {
		used, err := tx.commodityReferencedBySplits(c.UID)
		if err != nil {
			return err
		}
		if used {
			return &models.CommodityInUseError{CommodityUID: c.UID, Reason: "commodity cannot change once splits reference it"}
		}
	}
	c.ID = cur.ID
	c.CreatedAt = cur.CreatedAt
	return database.Classify("update commodity", tx.db.Save(c).Error)
}

func sameCommodity(a, b *models.Commodity) bool {
	return a.Namespace == b.Namespace &&
		a.Fullname == b.Fullname &&
		a.Mnemonic == b.Mnemonic &&
		a.LocalSymbol == b.LocalSymbol &&
		a.Cusip == b.Cusip &&
		a.SmallestFraction == b.SmallestFraction &&
		a.QuoteFlag == b.QuoteFlag
}

// commodityReferencedBySplits reports whether any split carries an
// amount in the commodity, either as transaction currency or as the
// commodity of the split's account.
func (tx *Tx) commodityReferencedBySplits(uid string) (bool, error) {
	var n int64
	err := tx.db.Model(&models.Split{}).
		Joins("JOIN transactions ON transactions.uid = splits.transaction_uid").
		Joins("JOIN accounts ON accounts.uid = splits.account_uid").
		Where("transactions.currency_uid = ? OR accounts.commodity_uid = ?", uid, uid).
		Count(&n).Error
	if err != nil {
		return false, database.Classify("count commodity usage", err)
	}
	return n > 0, nil
}

// GetCommodity loads one commodity.
func (tx *Tx) GetCommodity(uid string) (*models.Commodity, error) {
	var c models.Commodity
	found, err := tx.findByUID(&c, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "commodity", UID: uid}
	}
	return &c, nil
}

// commodity is GetCommodity reporting a dangling reference.
func (tx *Tx) commodity(uid string) (*models.Commodity, error) {
	var c models.Commodity
	found, err := tx.findByUID(&c, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.UnknownCommodityError{CommodityUID: uid}
	}
	return &c, nil
}

// CommodityByMnemonic finds a commodity such as ("ISO4217", "USD").
func (tx *Tx) CommodityByMnemonic(namespace, mnemonic string) (*models.Commodity, error) {
	if namespace == "" {
		namespace = models.NamespaceISO4217
	}
	var c models.Commodity
	res := tx.db.Where("namespace = ? AND mnemonic = ?", namespace, mnemonic).Limit(1).Find(&c)
	if res.Error != nil {
		return nil, database.Classify("find commodity", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &models.NotFoundError{Entity: "commodity", UID: namespace + ":" + mnemonic}
	}
	return &c, nil
}

// ListCommodities returns all commodities ordered by mnemonic.
func (tx *Tx) ListCommodities() ([]models.Commodity, error) {
	var list []models.Commodity
	if err := tx.db.Order("namespace, mnemonic").Find(&list).Error; err != nil {
		return nil, database.Classify("list commodities", err)
	}
	return list, nil
}

// DeleteCommodity removes a commodity that nothing references.
// Prices quoted in it go with it.
func (tx *Tx) DeleteCommodity(uid string) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if _, err := tx.GetCommodity(uid); err != nil {
		return err
	}
	var n int64
	if err := tx.db.Model(&models.Account{}).Where("commodity_uid = ?", uid).Count(&n).Error; err != nil {
		return database.Classify("count accounts", err)
	}
	if n > 0 {
		return &models.CommodityInUseError{CommodityUID: uid, Reason: "accounts are denominated in it"}
	}
	if err := tx.db.Model(&models.Transaction{}).Where("currency_uid = ?", uid).Count(&n).Error; err != nil {
		return database.Classify("count transactions", err)
	}
	if n > 0 {
		return &models.CommodityInUseError{CommodityUID: uid, Reason: "transactions are denominated in it"}
	}
	if err := tx.db.Where("commodity_uid = ? OR currency_uid = ?", uid, uid).Delete(&models.Price{}).Error; err != nil {
		return database.Classify("delete prices", err)
	}
	return database.Classify("delete commodity", tx.db.Where("uid = ?", uid).Delete(&models.Commodity{}).Error)
}

// SaveCommodity is the single-operation form of Tx.SaveCommodity.
func (s *Store) SaveCommodity(ctx context.Context, c *models.Commodity) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SaveCommodity(c) })
}

// GetCommodity is the single-operation form of Tx.GetCommodity.
func (s *Store) GetCommodity(ctx context.Context, uid string) (c *models.Commodity, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		c, err = tx.GetCommodity(uid)
		return err
	})
	return c, err
}

// ListCommodities is the single-operation form of Tx.ListCommodities.
func (s *Store) ListCommodities(ctx context.Context) (list []models.Commodity, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListCommodities()
		return err
	})
	return list, err
}

// DeleteCommodity is the single-operation form of Tx.DeleteCommodity.
func (s *Store) DeleteCommodity(ctx context.Context, uid string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.DeleteCommodity(uid) })
}
