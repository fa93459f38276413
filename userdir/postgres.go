package userdir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of *pgxpool.Pool the directory needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads accounts from:
//
//	create table admin_users (
//	  id            text primary key,
//	  email         text not null unique,
//	  name          text not null,
//	  role          text not null check (role in ('admin','user')),
//	  avatar        text not null default '',
//	  password_hash text not null
//	);
type Postgres struct {
	q    Querier
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and pings it.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Postgres{q: pool, pool: pool}, nil
}

// NewPostgresWithQuerier wraps an existing pool or transaction.
func NewPostgresWithQuerier(q Querier) *Postgres {
	return &Postgres{q: q}
}

// Close releases the pool when the directory owns one.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const selectUser = `
	select id, email, name, role, avatar, password_hash
	from admin_users
`

func (p *Postgres) FindByEmail(ctx context.Context, email string) (User, error) {
	return p.scanOne(p.q.QueryRow(ctx, selectUser+` where email = $1`, email))
}

func (p *Postgres) FindByID(ctx context.Context, id string) (User, error) {
	return p.scanOne(p.q.QueryRow(ctx, selectUser+` where id = $1`, id))
}

func (p *Postgres) scanOne(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.Avatar, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = Role(role)
	if !u.Role.Valid() {
		return User{}, fmt.Errorf("user %s has unknown role %q", u.ID, role)
	}
	return u, nil
}

var (
	_ Directory = (*Memory)(nil)
	_ Directory = (*Postgres)(nil)
)
