package migration

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"opticai_backend/platform/phone"

	"github.com/jackc/pgx/v5"
)

const clientBatchSize = 30000

var accountDateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "02.01.2006"}

// legacyAccount is one parsed row of account.csv.
type legacyAccount struct {
	AccountCode  string
	HeadOfFamily string
	BranchCode   string
	FirstName    string
	LastName     string
	NationalID   string
	Gender       string
	DateOfBirth  *time.Time
	PhoneMobile  string
	PhoneHome    string
	Email        string
	Address      string
	City         string
	Notes        string

	ClinicID int64
	ID       int64
	FamilyID *int64
}

// familyGroup collects the account indexes sharing one head_of_family. Name
// resolution prefers the last name of the head's own row when it is part of
// the group.
type familyGroup struct {
	Head    string
	Name    string
	Members []int
}

// groupFamilies builds family groups in first-seen head order. Rows without
// a head_of_family stay ungrouped.
func groupFamilies(accounts []*legacyAccount) []familyGroup {
	index := make(map[string]int)
	var groups []familyGroup

	for i, acc := range accounts {
		head := acc.HeadOfFamily
		if head == "" {
			continue
		}
		gi, ok := index[head]
		if !ok {
			gi = len(groups)
			index[head] = gi
			groups = append(groups, familyGroup{Head: head})
		}
		groups[gi].Members = append(groups[gi].Members, i)
	}

	for gi := range groups {
		g := &groups[gi]
		for _, i := range g.Members {
			if accounts[i].AccountCode == g.Head && accounts[i].LastName != "" {
				g.Name = accounts[i].LastName
				break
			}
		}
		if g.Name == "" {
			for _, i := range g.Members {
				if accounts[i].LastName != "" {
					g.Name = accounts[i].LastName
					break
				}
			}
		}
	}

	return groups
}

func parseAccountRow(row Row) *legacyAccount {
	return &legacyAccount{
		AccountCode:  row.Get("account_code"),
		HeadOfFamily: row.Get("head_of_family"),
		BranchCode:   row.Get("branch_code"),
		FirstName:    row.Get("first_name"),
		LastName:     row.Get("last_name"),
		NationalID:   row.Get("national_id"),
		Gender:       mapGender(row.Get("gender")),
		DateOfBirth:  parseLegacyDate(row.Get("date_of_birth")),
		PhoneMobile:  row.Get("phone_mobile"),
		PhoneHome:    row.Get("phone_home"),
		Email:        row.Get("email"),
		Address:      composeAddress(row.Get("street"), row.Get("house"), row.Get("apartment")),
		City:         row.Get("city"),
		Notes:        row.Get("notes"),
	}
}

func mapGender(raw string) string {
	switch raw {
	case "1":
		return "male"
	case "2":
		return "female"
	default:
		return ""
	}
}

// composeAddress joins street, house and apartment ("Herzl 12/4").
func composeAddress(street, house, apartment string) string {
	addr := strings.TrimSpace(street)
	if house != "" {
		if addr != "" {
			addr += " "
		}
		addr += house
		if apartment != "" {
			addr += "/" + apartment
		}
	}
	return addr
}

func parseLegacyDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range accountDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// loadAccounts reads account.csv and resolves tenant and composite ids.
func (e *Engine) loadAccounts(ctx context.Context, db queryer) ([]*legacyAccount, error) {
	file, err := OpenCSV(filepath.Join(e.dir, "account.csv"), e.maxRows)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var accounts []*legacyAccount
	err = file.Each(func(row Row) error {
		acc := parseAccountRow(row)
		if acc.AccountCode == "" {
			return nil
		}

		clinicID, err := e.tenants.ClinicFor(ctx, db, acc.BranchCode)
		if err != nil {
			return err
		}
		acc.ClinicID = clinicID

		id, err := CompositeClientID(clinicID, acc.AccountCode)
		if err != nil {
			e.log.Warn("skipping account with unusable code", "account_code", acc.AccountCode, "error", err)
			return nil
		}
		acc.ID = id
		e.clientClinics[id] = clinicID

		accounts = append(accounts, acc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("accounts loaded", "file", file.Path, "encoding", file.Encoding, "rows", len(accounts))
	return accounts, nil
}

// migrateClients runs the two-pass family grouping and the bulk client
// insert, then advances the clients id sequence past the synthesised ids.
// Returns the account_code → client id map used by every later stage.
func (e *Engine) migrateClients(ctx context.Context, db queryer) (map[string]int64, error) {
	accounts, err := e.loadAccounts(ctx, db)
	if err != nil {
		return nil, err
	}

	groups := groupFamilies(accounts)
	if err := e.insertFamilies(ctx, db, accounts, groups); err != nil {
		return nil, err
	}

	for start := 0; start < len(accounts); start += clientBatchSize {
		end := start + clientBatchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		if err := e.copyClients(ctx, db, accounts[start:end]); err != nil {
			return nil, fmt.Errorf("client batch %d-%d: %w", start, end, err)
		}
		e.log.Info("clients inserted", "from", start, "to", end)
	}

	if _, err := db.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('clients','id'), GREATEST((SELECT COALESCE(MAX(id),1) FROM clients), 1))`); err != nil {
		return nil, fmt.Errorf("advance clients sequence: %w", err)
	}

	byCode := make(map[string]int64, len(accounts))
	for _, acc := range accounts {
		byCode[acc.AccountCode] = acc.ID
	}
	return byCode, nil
}

func (e *Engine) insertFamilies(ctx context.Context, db queryer, accounts []*legacyAccount, groups []familyGroup) error {
	batch := &pgx.Batch{}
	for _, g := range groups {
		clinicID := accounts[g.Members[0]].ClinicID
		batch.Queue(`INSERT INTO families (clinic_id, name) VALUES ($1, $2) RETURNING id`, clinicID, g.Name)
	}

	results := db.SendBatch(ctx, batch)
	familyIDs := make([]int64, len(groups))
	for i := range groups {
		if err := results.QueryRow().Scan(&familyIDs[i]); err != nil {
			results.Close()
			return fmt.Errorf("insert family %q: %w", groups[i].Head, err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}

	for gi, g := range groups {
		for _, i := range g.Members {
			id := familyIDs[gi]
			accounts[i].FamilyID = &id
		}
	}
	return nil
}

var clientCopyColumns = []string{
	"id", "clinic_id", "family_id", "account_code", "first_name", "last_name",
	"national_id", "gender", "date_of_birth", "phone_mobile", "phone_home",
	"email", "address", "city", "notes",
}

func (e *Engine) copyClients(ctx context.Context, db queryer, accounts []*legacyAccount) error {
	_, err := db.CopyFrom(ctx, pgx.Identifier{"clients"}, clientCopyColumns,
		pgx.CopyFromSlice(len(accounts), func(i int) ([]any, error) {
			acc := accounts[i]
			return []any{
				acc.ID, acc.ClinicID, acc.FamilyID, acc.AccountCode,
				acc.FirstName, acc.LastName, nullable(acc.NationalID),
				nullable(acc.Gender), acc.DateOfBirth, nullable(acc.PhoneMobile),
				nullable(acc.PhoneHome), nullable(acc.Email), nullable(acc.Address),
				nullable(acc.City), nullable(acc.Notes),
			}, nil
		}))
	return err
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// matchExistingClients builds the account → client map without inserting,
// for re-runs that only enrich exams and orders. Matching tries national id,
// normalised email, normalised phones, then (first, last, date of birth).
func (e *Engine) matchExistingClients(ctx context.Context, db queryer) (map[string]int64, error) {
	accounts, err := e.loadAccounts(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, `
		SELECT c.id, c.clinic_id, COALESCE(c.national_id,''), COALESCE(c.email,''),
		       COALESCE(c.phone_mobile,''), COALESCE(c.phone_home,''),
		       c.first_name, c.last_name, c.date_of_birth
		FROM clients c
		JOIN clinics cl ON cl.id = c.clinic_id
		WHERE cl.company_id = $1`, e.tenants.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byNationalID := make(map[string]int64)
	byEmail := make(map[string]int64)
	byPhone := make(map[string]int64)
	byIdentity := make(map[string]int64)

	for rows.Next() {
		var id, clinicID int64
		var nationalID, email, mobile, home, first, last string
		var dob *time.Time
		if err := rows.Scan(&id, &clinicID, &nationalID, &email, &mobile, &home, &first, &last, &dob); err != nil {
			return nil, err
		}
		e.clientClinics[id] = clinicID
		if nationalID != "" {
			byNationalID[nationalID] = id
		}
		if email != "" {
			byEmail[strings.ToLower(strings.TrimSpace(email))] = id
		}
		for _, p := range []string{mobile, home} {
			if digits := phone.Digits(p); digits != "" {
				byPhone[digits] = id
			}
		}
		if first != "" && last != "" && dob != nil {
			byIdentity[identityKey(first, last, *dob)] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byCode := make(map[string]int64, len(accounts))
	matched := 0
	for _, acc := range accounts {
		if id, ok := matchAccount(acc, byNationalID, byEmail, byPhone, byIdentity); ok {
			byCode[acc.AccountCode] = id
			matched++
		}
	}

	e.log.Info("existing clients matched", "accounts", len(accounts), "matched", matched)
	return byCode, nil
}

func matchAccount(acc *legacyAccount, byNationalID, byEmail, byPhone, byIdentity map[string]int64) (int64, bool) {
	if acc.NationalID != "" {
		if id, ok := byNationalID[acc.NationalID]; ok {
			return id, true
		}
	}
	if acc.Email != "" {
		if id, ok := byEmail[strings.ToLower(strings.TrimSpace(acc.Email))]; ok {
			return id, true
		}
	}
	for _, p := range []string{acc.PhoneMobile, acc.PhoneHome} {
		if digits := phone.Digits(p); digits != "" {
			if id, ok := byPhone[digits]; ok {
				return id, true
			}
		}
	}
	if acc.FirstName != "" && acc.LastName != "" && acc.DateOfBirth != nil {
		if id, ok := byIdentity[identityKey(acc.FirstName, acc.LastName, *acc.DateOfBirth)]; ok {
			return id, true
		}
	}
	return 0, false
}

func identityKey(first, last string, dob time.Time) string {
	return strings.ToLower(first) + "|" + strings.ToLower(last) + "|" + dob.Format("2006-01-02")
}
