package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
)

// migrateLensChecks runs the enrichment pass: each optic_contact_lens_chk
// row updates the client's nearest exam with an over-refraction component
// and, when it references a prescription, the matching contact lens order.
// Existing non-null values always win; the pass only fills gaps. It must run
// after the exam and contact lens stages have committed.
func (e *Engine) migrateLensChecks(ctx context.Context, db queryer) error {
	file, err := OpenCSV(filepath.Join(e.dir, "optic_contact_lens_chk.csv"), e.maxRows)
	if err != nil {
		return nil
	}
	defer file.Close()

	enriched, skipped := 0, 0
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

		if err := e.enrichNearestExam(ctx, db, clientID, row); err != nil {
			return err
		}
		if code := row.Get("contact_presc_code"); code != "" {
			if err := e.enrichLensOrder(ctx, db, clientID, code, row); err != nil {
				return err
			}
		}
		enriched++
	}

	e.log.Info("lens checks applied", "enriched", enriched, "skipped", skipped)
	return nil
}

// overRefraction builds the component carried by a lens check row.
func overRefraction(row Row) map[string]any {
	component := map[string]any{
		"r_sph": numOrNil(row.Get("r_sph")),
		"r_cyl": numOrNil(row.Get("r_cyl")),
		"r_ax":  intOrNil(row.Get("r_ax")),
		"r_va":  vaOrNil(row.Get("r_va")),
		"l_sph": numOrNil(row.Get("l_sph")),
		"l_cyl": numOrNil(row.Get("l_cyl")),
		"l_ax":  intOrNil(row.Get("l_ax")),
		"l_va":  vaOrNil(row.Get("l_va")),
	}
	for k, v := range component {
		if v == nil {
			delete(component, k)
		}
	}
	return component
}

// enrichNearestExam picks the exam whose date is closest to the check's
// last_action (most recent exam when the check is undated) and merges the
// over-refraction component into its active layout instance.
func (e *Engine) enrichNearestExam(ctx context.Context, db queryer, clientID int64, row Row) error {
	component := overRefraction(row)
	if len(component) == 0 {
		return nil
	}

	rows, err := db.Query(ctx, `
		SELECT i.id, e.exam_date, i.exam_data
		FROM optical_exams e
		JOIN exam_layout_instances i ON i.exam_id = e.id AND i.is_active
		WHERE e.client_id = $1
		ORDER BY e.exam_date DESC NULLS LAST`, clientID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type candidate struct {
		instanceID int64
		examDate   *time.Time
		examData   []byte
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.instanceID, &c.examDate, &c.examData); err != nil {
			return err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	if lastAction := parseLegacyDate(row.Get("last_action")); lastAction != nil {
		bestDelta := math.MaxFloat64
		for _, c := range candidates {
			if c.examDate == nil {
				continue
			}
			delta := math.Abs(c.examDate.Sub(*lastAction).Hours())
			if delta < bestDelta {
				best, bestDelta = c, delta
			}
		}
	}

	var examData map[string]any
	if err := json.Unmarshal(best.examData, &examData); err != nil {
		return fmt.Errorf("decode exam_data of instance %d: %w", best.instanceID, err)
	}
	if examData == nil {
		examData = map[string]any{}
	}

	existing, _ := examData["over-refraction"].(map[string]any)
	examData["over-refraction"] = mergePreferExisting(existing, component)

	updated, err := json.Marshal(examData)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`UPDATE exam_layout_instances SET exam_data = $1 WHERE id = $2`,
		updated, best.instanceID)
	return err
}

// enrichLensOrder merges the check's refraction into the referenced order's
// exam, details and order blocks without overwriting existing values.
func (e *Engine) enrichLensOrder(ctx context.Context, db queryer, clientID int64, prescCode string, row Row) error {
	var orderID int64
	var raw []byte
	err := db.QueryRow(ctx, `
		SELECT id, order_data FROM contact_lens_orders
		WHERE client_id = $1 AND reference_code = $2
		ORDER BY id LIMIT 1`, clientID, prescCode).Scan(&orderID, &raw)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	var orderData map[string]any
	if err := json.Unmarshal(raw, &orderData); err != nil {
		return fmt.Errorf("decode order_data of order %d: %w", orderID, err)
	}
	if orderData == nil {
		orderData = map[string]any{}
	}

	examBlock := map[string]any{
		"r_va": vaOrNil(row.Get("r_va")),
		"l_va": vaOrNil(row.Get("l_va")),
	}
	detailsBlock := map[string]any{
		"r_sph": numOrNil(row.Get("r_sph")),
		"r_cyl": numOrNil(row.Get("r_cyl")),
		"l_sph": numOrNil(row.Get("l_sph")),
		"l_cyl": numOrNil(row.Get("l_cyl")),
	}
	orderBlock := map[string]any{
		"last_check": textOrNil(row.Get("last_action")),
	}

	for name, block := range map[string]map[string]any{
		"exam":    examBlock,
		"details": detailsBlock,
		"order":   orderBlock,
	} {
		for k, v := range block {
			if v == nil {
				delete(block, k)
			}
		}
		if len(block) == 0 {
			continue
		}
		existing, _ := orderData[name].(map[string]any)
		orderData[name] = mergePreferExisting(existing, block)
	}

	updated, err := json.Marshal(orderData)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`UPDATE contact_lens_orders SET order_data = $1 WHERE id = $2`,
		updated, orderID)
	return err
}

// mergePreferExisting fills gaps in existing from incoming; a non-null
// existing value is never overwritten.
func mergePreferExisting(existing, incoming map[string]any) map[string]any {
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range incoming {
		if cur, ok := existing[k]; !ok || cur == nil {
			existing[k] = v
		}
	}
	return existing
}
