package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
)

const examBatchSize = 2000

const defaultLayoutName = "Default Migrated Layout"

// expKey joins optic_exp_eyetests rows to their optic_eye_tests row.
func expKey(accountCode, code string) string {
	return accountCode + "|" + code
}

// loadExpandedTests indexes optic_exp_eyetests.csv by (account_code, code).
// The file is optional; exams simply get thinner exam_data without it.
func (e *Engine) loadExpandedTests() (map[string]Row, error) {
	file, err := OpenCSV(filepath.Join(e.dir, "optic_exp_eyetests.csv"), e.maxRows)
	if err != nil {
		return map[string]Row{}, nil
	}
	defer file.Close()

	index := make(map[string]Row)
	err = file.Each(func(row Row) error {
		index[expKey(row.Get("account_code"), row.Get("code"))] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// defaultLayoutID finds or creates the migrated layout for a clinic. A nil
// clinic id resolves the single global fallback layout.
func (e *Engine) defaultLayoutID(ctx context.Context, db queryer, clinicID *int64) (int64, error) {
	e.layoutMu.Lock()
	defer e.layoutMu.Unlock()

	key := int64(0)
	if clinicID != nil {
		key = *clinicID
	}
	if id, ok := e.layouts[key]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx,
		`SELECT id FROM exam_layouts WHERE name = $1 AND clinic_id IS NOT DISTINCT FROM $2`,
		defaultLayoutName, clinicID).Scan(&id)
	if err == pgx.ErrNoRows {
		err = db.QueryRow(ctx,
			`INSERT INTO exam_layouts (clinic_id, name, is_default) VALUES ($1, $2, true) RETURNING id`,
			clinicID, defaultLayoutName).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve default layout: %w", err)
	}

	e.layouts[key] = id
	return id, nil
}

type examRecord struct {
	clientID    int64
	clinicID    int64
	examDate    *time.Time
	testName    string
	examType    string
	dominantEye string
	examData    map[string]any
}

// migrateExams streams optic_eye_tests.csv, joins the expanded file, and
// writes an OpticalExam plus an active layout instance per row in scope.
func (e *Engine) migrateExams(ctx context.Context, db queryer) error {
	expanded, err := e.loadExpandedTests()
	if err != nil {
		return err
	}

	file, err := OpenCSV(filepath.Join(e.dir, "optic_eye_tests.csv"), e.maxRows)
	if err != nil {
		return err
	}
	defer file.Close()

	var batch []examRecord
	total, skipped := 0, 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.insertExamBatch(ctx, db, batch); err != nil {
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

		exp := expanded[expKey(row.Get("account_code"), row.Get("code"))]
		batch = append(batch, examRecord{
			clientID:    clientID,
			clinicID:    e.clientClinics[clientID],
			examDate:    parseLegacyDate(row.Get("exam_date")),
			testName:    row.Get("test_name"),
			examType:    row.Get("exam_type"),
			dominantEye: row.Get("dominant_eye"),
			examData:    assembleExamData(e.catalog, row, exp),
		})

		if len(batch) >= examBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	e.log.Info("exams migrated", "inserted", total, "skipped", skipped)
	return nil
}

func (e *Engine) insertExamBatch(ctx context.Context, db queryer, records []examRecord) error {
	examBatch := &pgx.Batch{}
	for _, rec := range records {
		examBatch.Queue(`
			INSERT INTO optical_exams (client_id, clinic_id, exam_date, test_name, type, dominant_eye)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			rec.clientID, rec.clinicID, rec.examDate,
			nullable(rec.testName), nullable(rec.examType), nullable(rec.dominantEye))
	}

	results := db.SendBatch(ctx, examBatch)
	examIDs := make([]int64, len(records))
	for i := range records {
		if err := results.QueryRow().Scan(&examIDs[i]); err != nil {
			results.Close()
			return fmt.Errorf("insert exam for client %d: %w", records[i].clientID, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	instanceBatch := &pgx.Batch{}
	for i, rec := range records {
		clinic := rec.clinicID
		layoutID, err := e.defaultLayoutID(ctx, db, &clinic)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec.examData)
		if err != nil {
			return fmt.Errorf("marshal exam_data for client %d: %w", rec.clientID, err)
		}
		instanceBatch.Queue(`
			INSERT INTO exam_layout_instances (exam_id, layout_id, exam_data, is_active)
			VALUES ($1, $2, $3, true)`,
			examIDs[i], layoutID, data)
	}

	results = db.SendBatch(ctx, instanceBatch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert layout instance: %w", err)
		}
	}
	return nil
}
