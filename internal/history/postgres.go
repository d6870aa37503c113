package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var ErrMatchNotFound = errors.New("MATCH_NOT_FOUND: Match not found")

// Migrate applies the embedded schema migrations to the database at pgURL.
func Migrate(pgURL string) error {
	db, err := sql.Open("pgx", pgURL)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PostgresRecorder stores match history in PostgreSQL.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder migrates the database and opens a connection pool.
func NewPostgresRecorder(ctx context.Context, pgURL string) (*PostgresRecorder, error) {
	if err := Migrate(pgURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, pgURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) MatchStarted(ctx context.Context, m Match) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO matches (id, lobby_id, lobby_name, external_port, started_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.LobbyID, m.LobbyName, int(m.ExternalPort), m.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("insert match %s: %w", m.ID, err)
		}

		batch := &pgx.Batch{}
		for _, p := range m.Players {
			batch.Queue(
				`INSERT INTO match_players (match_id, player_id, name, team, champion_id)
				 VALUES ($1, $2, $3, $4, $5)`,
				m.ID, p.ID, p.Name, p.Team, p.ChampionID,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert players of match %s: %w", m.ID, err)
		}
		return nil
	})
}

func (r *PostgresRecorder) MatchEnded(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE matches SET ended_at = $2, end_reason = $3 WHERE id = $1 AND ended_at IS NULL`,
		id, at, reason,
	)
	if err != nil {
		return fmt.Errorf("end match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Match, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lobby_id, lobby_name, external_port, started_at, ended_at, COALESCE(end_reason, '')
		 FROM matches ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		var port int32
		err := row.Scan(&m.ID, &m.LobbyID, &m.LobbyName, &port, &m.StartedAt, &m.EndedAt, &m.EndReason)
		m.ExternalPort = uint16(port)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}

	for i := range matches {
		players, err := r.players(ctx, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Players = players
	}
	return matches, nil
}

func (r *PostgresRecorder) players(ctx context.Context, matchID uuid.UUID) ([]Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT player_id, name, team, champion_id FROM match_players
		 WHERE match_id = $1 ORDER BY team, name`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query players of match %s: %w", matchID, err)
	}
	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Player, error) {
		var p Player
		err := row.Scan(&p.ID, &p.Name, &p.Team, &p.ChampionID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan players of match %s: %w", matchID, err)
	}
	return players, nil
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
