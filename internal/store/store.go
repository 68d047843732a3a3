package store

import (
	"context"
	"database/sql"
	"time"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

type UserRow struct {
	ID       int64
	SchoolID sql.NullInt64
	Name     string
	Email    string
}

type SchoolRow struct {
	ID         int64
	SchoolName string
}

type TemplateRow struct {
	ID        int64
	UserID    int64
	Name      string
	Content   string
	Type      string
	Subject   sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MessageLogRow struct {
	ID            int64
	UserID        int64
	MessageType   string
	Recipient     string
	RecipientName string
	Subject       sql.NullString
	Content       string
	Status        bool
	SID           sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetUserByToken resolves the authenticated caller. Returns nil when the
// token matches no user.
func (s *Store) GetUserByToken(ctx context.Context, token string) (*UserRow, error) {
	var u UserRow
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, school_id, name, email
		FROM users
		WHERE api_token = $1
	`, token).Scan(&u.ID, &u.SchoolID, &u.Name, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetSchool(ctx context.Context, id int64) (*SchoolRow, error) {
	var sc SchoolRow
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, school_name FROM schools WHERE id = $1
	`, id).Scan(&sc.ID, &sc.SchoolName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetTemplate looks a template up by id, owner and channel type. A miss on
// any of the three returns nil, not an error; the dispatch layer decides
// what a miss means.
func (s *Store) GetTemplate(ctx context.Context, id, userID int64, kind string) (*TemplateRow, error) {
	var t TemplateRow
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, content, type, subject, created_at, updated_at
		FROM templates
		WHERE id = $1 AND user_id = $2 AND type = $3
	`, id, userID, kind).Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &t.Type, &t.Subject, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTemplateByID(ctx context.Context, id, userID int64) (*TemplateRow, error) {
	var t TemplateRow
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, content, type, subject, created_at, updated_at
		FROM templates
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &t.Type, &t.Subject, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) InsertTemplate(ctx context.Context, userID int64, name, content, kind string, subject sql.NullString) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO templates (user_id, name, content, type, subject)
		VALUES ($1,$2,$3,$4,$5) RETURNING id
	`, userID, name, content, kind, subject).Scan(&id)
	return id, err
}

func (s *Store) UpdateTemplate(ctx context.Context, id, userID int64, name, content, kind string, subject sql.NullString) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE templates
		   SET name=$1, content=$2, type=$3, subject=$4, updated_at=NOW()
		 WHERE id=$5 AND user_id=$6
	`, name, content, kind, subject, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) DeleteTemplate(ctx context.Context, id, userID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM templates WHERE id=$1 AND user_id=$2
	`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListTemplates(ctx context.Context, userID int64, kind string, limit, offset int) ([]TemplateRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, name, content, type, subject, created_at, updated_at
		FROM templates
		WHERE user_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.DB.QueryContext(ctx, query, userID, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TemplateRow
	for rows.Next() {
		var t TemplateRow
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &t.Type, &t.Subject, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) InsertMessageLog(ctx context.Context, tx *sql.Tx, e MessageLogRow) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO message_logs (user_id, message_type, recipient, recipient_name, subject, content, status, sid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id
	`, e.UserID, e.MessageType, e.Recipient, e.RecipientName, e.Subject, e.Content, e.Status, e.SID).Scan(&id)
	return id, err
}

// SaveMessageLogs persists every attempt of one dispatch request in a single
// transaction. The commit boundary sits at the end of dispatch, not per
// recipient.
func (s *Store) SaveMessageLogs(ctx context.Context, entries []MessageLogRow) error {
	if len(entries) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := s.InsertMessageLog(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateLogStatusBySID flips the delivery status of the row correlated with
// a transport sid. Returns the number of rows touched; zero means the sid is
// unknown locally, which callers treat as a no-op.
func (s *Store) UpdateLogStatusBySID(ctx context.Context, sid string, status bool) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE message_logs
		   SET status=$1, updated_at=NOW()
		 WHERE sid=$2
	`, status, sid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type LogFilter struct {
	Recipient string
	Status    *bool
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ListLogs returns a page of the caller's delivery log plus the unpaged
// match count.
func (s *Store) ListLogs(ctx context.Context, userID int64, f LogFilter) ([]MessageLogRow, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := `
		WHERE user_id = $1
		  AND ($2 = '' OR recipient ILIKE '%' || $2 || '%' OR recipient_name ILIKE '%' || $2 || '%')
		  AND ($3::boolean IS NULL OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
	`

	var total int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_logs`+where,
		userID, f.Recipient, f.Status, f.From, f.To,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, message_type, recipient, recipient_name, subject, content, status, sid, created_at, updated_at
		FROM message_logs`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7
	`, userID, f.Recipient, f.Status, f.From, f.To, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []MessageLogRow
	for rows.Next() {
		var e MessageLogRow
		if err := rows.Scan(&e.ID, &e.UserID, &e.MessageType, &e.Recipient, &e.RecipientName,
			&e.Subject, &e.Content, &e.Status, &e.SID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
