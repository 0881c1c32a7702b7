package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:chat_sessions,alias:cs"`

	ID               string    `bun:"id,pk"`
	Channel          string    `bun:"channel,notnull"`
	AssistantName    string    `bun:"assistant_name,notnull"`
	State            string    `bun:"state,notnull"`
	Active           bool      `bun:"active,notnull"`
	Confirmed        bool      `bun:"confirmed,notnull"`
	Username         string    `bun:"username,notnull"`
	ContactNo        string    `bun:"contact_no,notnull"`
	MoveDate         string    `bun:"move_date,notnull"`
	EstimatedCostMin *float64  `bun:"estimated_cost_min"`
	EstimatedCostMax *float64  `bun:"estimated_cost_max"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
}

type moveDetailRow struct {
	bun.BaseModel `bun:"table:move_details,alias:md"`

	SessionID          string    `bun:"session_id,pk"`
	Origin             string    `bun:"origin,notnull"`
	Destination        string    `bun:"destination,notnull"`
	MoveSize           string    `bun:"move_size,notnull"`
	MoveDate           string    `bun:"move_date,notnull"`
	AdditionalServices string    `bun:"additional_services,notnull"`
	Username           string    `bun:"username,notnull"`
	ContactNo          string    `bun:"contact_no,notnull"`
	Email              string    `bun:"email,notnull"`
	EstimatedCostMin   *float64  `bun:"estimated_cost_min"`
	EstimatedCostMax   *float64  `bun:"estimated_cost_max"`
	State              string    `bun:"state,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	SessionID string    `bun:"session_id,notnull"`
	Sender    string    `bun:"sender,notnull"`
	Text      string    `bun:"text,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// SQLStore persists sessions in Postgres or sqlite through bun.
type SQLStore struct {
	db *bun.DB
}

func NewSQLStore(db *bun.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQL picks the dialect from the DSN: postgres:// URLs use pgdriver, anything else
// is handed to the embedded sqlite driver.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	var db *bun.DB
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		sqldb, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite serialises writers; one connection avoids SQLITE_BUSY between commits.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewSQLStore(db)
	if err := store.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chat_sessions: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*moveDetailRow)(nil)).IfNotExists().
		ForeignKey(`("session_id") REFERENCES "chat_sessions" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create move_details: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*messageRow)(nil)).IfNotExists().
		ForeignKey(`("session_id") REFERENCES "chat_sessions" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	if _, err := s.db.NewCreateIndex().Model((*messageRow)(nil)).IfNotExists().
		Index("messages_session_id_idx").Column("session_id", "id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	if _, err := s.db.NewCreateIndex().Model((*sessionRow)(nil)).IfNotExists().
		Index("chat_sessions_active_updated_idx").Column("active", "updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("create chat_sessions index: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	var row sessionRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	sess := row.toSession()

	var detail moveDetailRow
	err := s.db.NewSelect().Model(&detail).Where("session_id = ?", sessionID).Scan(ctx)
	switch {
	case err == nil:
		sess.Detail = detail.toDetail()
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("select move detail: %w", err)
	}

	return sess, nil
}

func (s *SQLStore) Commit(ctx context.Context, sess *Session, msgs []Message) error {
	if err := checkCommit(sess, msgs); err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := sessionRowFrom(sess)
		if _, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("state = EXCLUDED.state").
			Set("active = EXCLUDED.active").
			Set("confirmed = EXCLUDED.confirmed").
			Set("username = EXCLUDED.username").
			Set("contact_no = EXCLUDED.contact_no").
			Set("move_date = EXCLUDED.move_date").
			Set("estimated_cost_min = EXCLUDED.estimated_cost_min").
			Set("estimated_cost_max = EXCLUDED.estimated_cost_max").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		if sess.Detail != nil {
			detail := detailRowFrom(sess.ID, sess.Detail)
			if _, err := tx.NewInsert().Model(detail).
				On("CONFLICT (session_id) DO UPDATE").
				Set("origin = EXCLUDED.origin").
				Set("destination = EXCLUDED.destination").
				Set("move_size = EXCLUDED.move_size").
				Set("move_date = EXCLUDED.move_date").
				Set("additional_services = EXCLUDED.additional_services").
				Set("username = EXCLUDED.username").
				Set("contact_no = EXCLUDED.contact_no").
				Set("email = EXCLUDED.email").
				Set("estimated_cost_min = EXCLUDED.estimated_cost_min").
				Set("estimated_cost_max = EXCLUDED.estimated_cost_max").
				Set("state = EXCLUDED.state").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert move detail: %w", err)
			}
		}

		if len(msgs) == 0 {
			return nil
		}
		rows := make([]messageRow, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, messageRow{
				SessionID: m.SessionID,
				Sender:    string(m.Sender),
				Text:      m.Text,
				CreatedAt: m.CreatedAt.UTC(),
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var rows []messageRow
	q := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	out := make([]Message, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = Message{
			SessionID: r.SessionID,
			Sender:    Role(r.Sender),
			Text:      r.Text,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return out, nil
}

func (s *SQLStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("active = ?", false).
		Where("active = ?", true).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("deactivate idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func sessionRowFrom(s *Session) *sessionRow {
	return &sessionRow{
		ID:               s.ID,
		Channel:          string(s.Channel),
		AssistantName:    s.AssistantName,
		State:            string(s.State),
		Active:           s.Active,
		Confirmed:        s.Confirmed,
		Username:         s.Username,
		ContactNo:        s.ContactNo,
		MoveDate:         s.MoveDate,
		EstimatedCostMin: s.EstimatedCostMin,
		EstimatedCostMax: s.EstimatedCostMax,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

func (r *sessionRow) toSession() *Session {
	return &Session{
		ID:               r.ID,
		Channel:          Channel(r.Channel),
		AssistantName:    r.AssistantName,
		State:            DialogueState(r.State),
		Active:           r.Active,
		Confirmed:        r.Confirmed,
		Username:         r.Username,
		ContactNo:        r.ContactNo,
		MoveDate:         r.MoveDate,
		EstimatedCostMin: r.EstimatedCostMin,
		EstimatedCostMax: r.EstimatedCostMax,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func detailRowFrom(sessionID string, d *MoveDetail) *moveDetailRow {
	return &moveDetailRow{
		SessionID:          sessionID,
		Origin:             d.Origin,
		Destination:        d.Destination,
		MoveSize:           d.MoveSize,
		MoveDate:           d.MoveDate,
		AdditionalServices: strings.Join(d.AdditionalServices, ","),
		Username:           d.Username,
		ContactNo:          d.ContactNo,
		Email:              d.Email,
		EstimatedCostMin:   d.EstimatedCostMin,
		EstimatedCostMax:   d.EstimatedCostMax,
		State:              string(d.State),
		CreatedAt:          d.CreatedAt.UTC(),
	}
}

func (r *moveDetailRow) toDetail() *MoveDetail {
	var services []string
	if r.AdditionalServices != "" {
		services = strings.Split(r.AdditionalServices, ",")
	}
	return &MoveDetail{
		Origin:             r.Origin,
		Destination:        r.Destination,
		MoveSize:           r.MoveSize,
		MoveDate:           r.MoveDate,
		AdditionalServices: services,
		Username:           r.Username,
		ContactNo:          r.ContactNo,
		Email:              r.Email,
		EstimatedCostMin:   r.EstimatedCostMin,
		EstimatedCostMax:   r.EstimatedCostMax,
		State:              DialogueState(r.State),
		CreatedAt:          r.CreatedAt.UTC(),
	}
}
