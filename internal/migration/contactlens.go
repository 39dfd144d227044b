package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const contactLensBatchSize = 2000

type lensOrderRecord struct {
	clientID      int64
	clinicID      int64
	orderDate     *time.Time
	referenceCode string
	orderData     map[string]any

	total     float64
	lineItems []lensLineItem
}

type lensLineItem struct {
	description string
	quantity    int
	unitPrice   float64
	discount    float64
	lineTotal   float64
}

// loadPrescPrices reads the optional optic_presc_prices.csv lookup used to
// fill in monetary fields missing from the prescription row itself.
func (e *Engine) loadPrescPrices() (map[string]Row, error) {
	file, err := OpenCSV(filepath.Join(e.dir, "optic_presc_prices.csv"), e.maxRows)
	if err != nil {
		return map[string]Row{}, nil
	}
	defer file.Close()

	index := make(map[string]Row)
	err = file.Each(func(row Row) error {
		index[row.Get("presc_code")] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// migrateContactLenses builds a ContactLensOrder per optic_contact_presc row
// in scope, with the order_data blocks and, when monetary fields are present,
// a billing with up to two line items (right lens, left lens).
func (e *Engine) migrateContactLenses(ctx context.Context, db queryer) error {
	prices, err := e.loadPrescPrices()
	if err != nil {
		return err
	}

	file, err := OpenCSV(filepath.Join(e.dir, "optic_contact_presc.csv"), e.maxRows)
	if err != nil {
		return err
	}
	defer file.Close()

	var batch []lensOrderRecord
	total, skipped := 0, 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.insertLensOrderBatch(ctx, db, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		row, err := file.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		clientID, ok := e.accounts[row.Get("account_code")]
		if !ok {
			skipped++
			continue
		}

		rec := buildLensOrder(row, prices[row.Get("presc_code")])
		rec.clientID = clientID
		rec.clinicID = e.clientClinics[clientID]
		batch = append(batch, rec)

		if len(batch) >= contactLensBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	e.log.Info("contact lens orders migrated", "inserted", total, "skipped", skipped)
	return nil
}

// buildLensOrder assembles order_data blocks and the optional billing lines.
// priceRow supplies monetary fields absent from the prescription row.
func buildLensOrder(row Row, priceRow Row) lensOrderRecord {
	rec := lensOrderRecord{
		orderDate:     parseLegacyDate(row.Get("presc_date")),
		referenceCode: row.Get("presc_code"),
	}

	orderData := map[string]any{}
	putBlock(orderData, "order", map[string]any{
		"reference": textOrNil(row.Get("presc_code")),
		"supplier":  textOrNil(row.Get("supplier")),
		"brand":     textOrNil(row.Get("brand")),
		"lens_type": textOrNil(row.Get("lens_type")),
	})
	putBlock(orderData, "details", map[string]any{
		"r_bc":  numOrNil(row.Get("r_bc")),
		"r_dia": numOrNil(row.Get("r_dia")),
		"r_sph": numOrNil(row.Get("r_sph")),
		"r_cyl": numOrNil(row.Get("r_cyl")),
		"r_ax":  intOrNil(row.Get("r_ax")),
		"l_bc":  numOrNil(row.Get("l_bc")),
		"l_dia": numOrNil(row.Get("l_dia")),
		"l_sph": numOrNil(row.Get("l_sph")),
		"l_cyl": numOrNil(row.Get("l_cyl")),
		"l_ax":  intOrNil(row.Get("l_ax")),
	})
	putBlock(orderData, "exam", map[string]any{
		"r_va": vaOrNil(row.Get("r_va")),
		"l_va": vaOrNil(row.Get("l_va")),
	})
	putBlock(orderData, "keratometer", map[string]any{
		"r_k1": numOrNil(row.Get("ker_r_k1")),
		"r_k2": numOrNil(row.Get("ker_r_k2")),
		"l_k1": numOrNil(row.Get("ker_l_k1")),
		"l_k2": numOrNil(row.Get("ker_l_k2")),
	})
	putBlock(orderData, "schirmer", map[string]any{
		"r_mm": numOrNil(row.Get("schirmer_right")),
		"l_mm": numOrNil(row.Get("schirmer_left")),
	})
	putBlock(orderData, "diameters", map[string]any{
		"pupil":  numOrNil(row.Get("pupil_dia")),
		"cornea": numOrNil(row.Get("cornea_dia")),
	})
	rec.orderData = orderData

	for _, side := range []struct {
		key, description string
	}{
		{"right", "right lens"},
		{"left", "left lens"},
	} {
		price := monetaryField(row, priceRow, "price_"+side.key)
		if price == nil {
			continue
		}
		qty := 1
		if q := intOrNil(lookupField(row, priceRow, "qty_"+side.key)); q != nil {
			qty = q.(int)
		}
		discount := 0.0
		if d := monetaryField(row, priceRow, "discount_"+side.key); d != nil {
			discount = *d
		}

		lineTotal := *price*float64(qty) - discount
		rec.lineItems = append(rec.lineItems, lensLineItem{
			description: side.description,
			quantity:    qty,
			unitPrice:   *price,
			discount:    discount,
			lineTotal:   lineTotal,
		})
		rec.total += lineTotal
	}

	return rec
}

func (e *Engine) insertLensOrderBatch(ctx context.Context, db queryer, records []lensOrderRecord) error {
	orderBatch := &pgx.Batch{}
	for _, rec := range records {
		data, err := json.Marshal(rec.orderData)
		if err != nil {
			return fmt.Errorf("marshal order_data: %w", err)
		}
		orderBatch.Queue(`
			INSERT INTO contact_lens_orders (client_id, clinic_id, order_date, reference_code, order_data)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			rec.clientID, rec.clinicID, rec.orderDate, nullable(rec.referenceCode), data)
	}

	results := db.SendBatch(ctx, orderBatch)
	orderIDs := make([]int64, len(records))
	for i := range records {
		if err := results.QueryRow().Scan(&orderIDs[i]); err != nil {
			results.Close()
			return fmt.Errorf("insert contact lens order for client %d: %w", records[i].clientID, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	billingBatch := &pgx.Batch{}
	queued := 0
	for i, rec := range records {
		if len(rec.lineItems) == 0 {
			continue
		}
		billingBatch.Queue(`
			INSERT INTO billings (clinic_id, client_id, contact_lens_order_id, total, billing_date)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			rec.clinicID, rec.clientID, orderIDs[i], rec.total, rec.orderDate)
		queued++
	}
	if queued == 0 {
		return nil
	}

	results = db.SendBatch(ctx, billingBatch)
	billingIDs := make([]int64, 0, queued)
	for range queued {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			results.Close()
			return fmt.Errorf("insert billing: %w", err)
		}
		billingIDs = append(billingIDs, id)
	}
	if err := results.Close(); err != nil {
		return err
	}

	itemBatch := &pgx.Batch{}
	itemCount := 0
	bi := 0
	for _, rec := range records {
		if len(rec.lineItems) == 0 {
			continue
		}
		billingID := billingIDs[bi]
		bi++
		for _, item := range rec.lineItems {
			itemBatch.Queue(`
				INSERT INTO order_line_items (billing_id, description, quantity, unit_price, discount, line_total)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				billingID, item.description, item.quantity, item.unitPrice, item.discount, item.lineTotal)
			itemCount++
		}
	}

	results = db.SendBatch(ctx, itemBatch)
	defer results.Close()
	for range itemCount {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

// putBlock adds a block to order_data unless every value is nil.
func putBlock(data map[string]any, name string, block map[string]any) {
	for k, v := range block {
		if v == nil {
			delete(block, k)
		}
	}
	if len(block) > 0 {
		data[name] = block
	}
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func numOrNil(s string) any {
	if f := ParseNumber(s); f != nil {
		return *f
	}
	return nil
}

func vaOrNil(s string) any {
	if f := ParseVisualAcuity(s); f != nil {
		return *f
	}
	return nil
}

func intOrNil(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return nil
}

// lookupField prefers the prescription row's own column, falling back to the
// price lookup file.
func lookupField(row Row, priceRow Row, column string) string {
	if v := row.Get(column); v != "" {
		return v
	}
	if priceRow != nil {
		return priceRow.Get(column)
	}
	return ""
}

// monetaryField parses a plain decimal amount; monetary columns are not
// subject to the fixed-point prescription rule.
func monetaryField(row Row, priceRow Row, column string) *float64 {
	raw := strings.TrimSpace(strings.ReplaceAll(lookupField(row, priceRow, column), ",", "."))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}
