package migration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/minio/minio-go/v7"
)

const (
	referralBatchSize    = 2000
	fileBatchSize        = 2000
	medicalLogBatchSize  = 5000
	appointmentBatchSize = 5000
)

// streamInScope iterates a CSV, resolving the client for each row and
// flushing collected batches. Rows whose account is out of scope are skipped.
func (e *Engine) streamInScope(path string, batchSize int, collect func(clientID int64, row Row), flush func() error) error {
	file, err := OpenCSV(path, e.maxRows)
	if err != nil {
		return nil
	}
	defer file.Close()

	pending, skipped := 0, 0
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

		collect(clientID, row)
		pending++
		if pending >= batchSize {
			if err := flush(); err != nil {
				return err
			}
			pending = 0
		}
	}
	if err := flush(); err != nil {
		return err
	}

	e.log.Info("secondary file migrated", "file", filepath.Base(path), "skipped", skipped)
	return nil
}

func (e *Engine) migrateReferrals(ctx context.Context, db queryer) error {
	type referral struct {
		clientID   int64
		clinicID   int64
		date       *time.Time
		referredTo string
		reason     string
	}
	var batch []referral

	return e.streamInScope(filepath.Join(e.dir, "optic_reference.csv"), referralBatchSize,
		func(clientID int64, row Row) {
			batch = append(batch, referral{
				clientID:   clientID,
				clinicID:   e.clientClinics[clientID],
				date:       parseLegacyDate(row.Get("reference_date")),
				referredTo: row.Get("referred_to"),
				reason:     row.Get("reason"),
			})
		},
		func() error {
			if len(batch) == 0 {
				return nil
			}
			_, err := db.CopyFrom(ctx, pgx.Identifier{"referrals"},
				[]string{"client_id", "clinic_id", "referral_date", "referred_to", "reason"},
				pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
					r := batch[i]
					return []any{r.clientID, r.clinicID, r.date, nullable(r.referredTo), nullable(r.reason)}, nil
				}))
			batch = batch[:0]
			return err
		})
}

func (e *Engine) migrateFiles(ctx context.Context, db queryer) error {
	type legacyFile struct {
		clientID   int64
		clinicID   int64
		fileName   string
		filePath   string
		storageKey *string
		uploadedAt *time.Time
	}
	var batch []legacyFile

	return e.streamInScope(filepath.Join(e.dir, "account_files.csv"), fileBatchSize,
		func(clientID int64, row Row) {
			f := legacyFile{
				clientID:   clientID,
				clinicID:   e.clientClinics[clientID],
				fileName:   row.Get("file_name"),
				filePath:   row.Get("file_path"),
				uploadedAt: parseLegacyTimestamp(row.Get("upload_date")),
			}
			f.storageKey = e.uploadLegacyFile(ctx, f.clinicID, clientID, f.fileName, f.filePath)
			batch = append(batch, f)
		},
		func() error {
			if len(batch) == 0 {
				return nil
			}
			_, err := db.CopyFrom(ctx, pgx.Identifier{"files"},
				[]string{"client_id", "clinic_id", "file_name", "file_path", "storage_key", "uploaded_at"},
				pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
					f := batch[i]
					return []any{f.clientID, f.clinicID, f.fileName, nullable(f.filePath), f.storageKey, f.uploadedAt}, nil
				}))
			batch = batch[:0]
			return err
		})
}

// uploadLegacyFile pushes the blob behind a legacy file row to object
// storage when MinIO is configured and the path resolves inside the CSV
// directory. Returns the storage key, or nil for metadata-only rows.
func (e *Engine) uploadLegacyFile(ctx context.Context, clinicID, clientID int64, fileName, relPath string) *string {
	if e.blobs == nil || relPath == "" {
		return nil
	}

	local := filepath.Join(e.dir, "files", filepath.FromSlash(relPath))
	if _, err := os.Stat(local); err != nil {
		return nil
	}

	key := "legacy/" + strconv.FormatInt(clinicID, 10) + "/" + strconv.FormatInt(clientID, 10) + "/" + fileName
	_, err := e.blobs.FPutObject(ctx, e.blobBucket, key, local, minio.PutObjectOptions{})
	if err != nil {
		e.log.Warn("legacy file upload failed", "file", relPath, "error", err)
		return nil
	}
	return &key
}

func (e *Engine) migrateMedicalLogs(ctx context.Context, db queryer) error {
	type memo struct {
		clientID int64
		clinicID int64
		date     *time.Time
		log      string
	}
	var batch []memo

	return e.streamInScope(filepath.Join(e.dir, "account_memos.csv"), medicalLogBatchSize,
		func(clientID int64, row Row) {
			text := row.Get("memo")
			if text == "" {
				return
			}
			batch = append(batch, memo{
				clientID: clientID,
				clinicID: e.clientClinics[clientID],
				date:     parseLegacyDate(row.Get("memo_date")),
				log:      text,
			})
		},
		func() error {
			if len(batch) == 0 {
				return nil
			}
			_, err := db.CopyFrom(ctx, pgx.Identifier{"medical_logs"},
				[]string{"client_id", "clinic_id", "log_date", "log"},
				pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
					m := batch[i]
					return []any{m.clientID, m.clinicID, m.date, m.log}, nil
				}))
			batch = batch[:0]
			return err
		})
}

func (e *Engine) migrateAppointments(ctx context.Context, db queryer) error {
	type slot struct {
		clientID int64
		clinicID int64
		date     *time.Time
		time     string
		duration int
		examName string
		note     string
	}
	var batch []slot

	return e.streamInScope(filepath.Join(e.dir, "diary_timetab.csv"), appointmentBatchSize,
		func(clientID int64, row Row) {
			date := parseLegacyDate(row.Get("date"))
			if date == nil {
				return
			}
			duration := 30
			if d := intOrNil(row.Get("duration")); d != nil {
				duration = d.(int)
			}
			batch = append(batch, slot{
				clientID: clientID,
				clinicID: e.clientClinics[clientID],
				date:     date,
				time:     row.Get("time"),
				duration: duration,
				examName: row.Get("exam_name"),
				note:     row.Get("note"),
			})
		},
		func() error {
			if len(batch) == 0 {
				return nil
			}
			_, err := db.CopyFrom(ctx, pgx.Identifier{"appointments"},
				[]string{"client_id", "clinic_id", "date", "time", "duration", "exam_name", "note"},
				pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
					s := batch[i]
					return []any{s.clientID, s.clinicID, s.date, s.time, s.duration, nullable(s.examName), nullable(s.note)}, nil
				}))
			batch = batch[:0]
			return err
		})
}

var timestampLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "02/01/2006 15:04"}

func parseLegacyTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return parseLegacyDate(raw)
}
