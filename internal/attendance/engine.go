package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"attendance-backend/internal/directory"
)

type Kind int

const (
	CheckIn Kind = iota + 1
	CheckOut
)

func (k Kind) String() string {
	switch k {
	case CheckIn:
		return StatusCheckIn
	case CheckOut:
		return StatusCheckOut
	default:
		return "unknown"
	}
}

// 競合時の再判定は 1 回まで
const maxToggleAttempts = 2

type IDGen interface {
	New(t time.Time) (string, error)
}

type ulidGen struct{}

func (ulidGen) New(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t.UTC()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Decision: 1 回のスキャンをどう扱うか。
// CheckIn なら Record は新しく追加する open な記録、CheckOut なら閉じる対象の記録。
type Decision struct {
	Kind   Kind
	Record SessionRecord
	At     time.Time
}

type Result struct {
	Kind   Kind
	Record SessionRecord
	At     time.Time
}

// Engine は入室/退室のトグル判定と台帳への確定を行う。
// 判定から確定までロックは持たない。台帳の各操作がそれぞれ原子的で、
// 負けた側は ErrDuplicateOpenSession / ErrRecordNotOpen を受けて 1 回だけ判定し直す。
type Engine struct {
	ledger Ledger
	loc    *time.Location
	ids    IDGen
}

func NewEngine(ledger Ledger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{ledger: ledger, loc: loc, ids: ulidGen{}}
}

// DateOf は now の暦日（設定タイムゾーン）。「1 日 1 open」の単位。
func (e *Engine) DateOf(now time.Time) string {
	return now.In(e.loc).Format(DateLayout)
}

// Decide は台帳の現在状態だけを見て次の遷移を決める。台帳は変更しない。
func (e *Engine) Decide(ctx context.Context, who directory.Entry, now time.Time) (Decision, error) {
	date := e.DateOf(now)
	open, err := e.ledger.FindOpenSession(ctx, who.ID, date)
	if err != nil {
		return Decision{}, err
	}
	if open != nil {
		// 競合相手の方が新しい時刻で入室していたら、退室はその時刻に揃える
		at := now
		if at.Before(open.InAt) {
			at = open.InAt
		}
		return Decision{Kind: CheckOut, Record: *open, At: at}, nil
	}

	id, err := e.ids.New(now)
	if err != nil {
		return Decision{}, fmt.Errorf("generate session id: %w", err)
	}
	return Decision{
		Kind: CheckIn,
		Record: SessionRecord{
			SessionULID: id,
			Date:        date,
			Identifier:  who.ID,
			DisplayName: who.Name,
			Group:       who.Group,
			InAt:        now,
		},
		At: now,
	}, nil
}

func (e *Engine) commit(ctx context.Context, d Decision) (SessionRecord, error) {
	switch d.Kind {
	case CheckIn:
		return e.ledger.AppendCheckIn(ctx, d.Record)
	case CheckOut:
		return e.ledger.CloseSession(ctx, d.Record.ID, d.At)
	default:
		return SessionRecord{}, fmt.Errorf("unknown decision kind %d", d.Kind)
	}
}

// Toggle: 判定 → 確定。競合に負けたら最新状態で 1 回だけやり直し、
// それでも負けたら ErrConcurrentScanConflict。
func (e *Engine) Toggle(ctx context.Context, who directory.Entry, now time.Time) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxToggleAttempts; attempt++ {
		d, err := e.Decide(ctx, who, now)
		if err != nil {
			return Result{}, err
		}
		rec, err := e.commit(ctx, d)
		if err == nil {
			return Result{Kind: d.Kind, Record: rec, At: d.At}, nil
		}
		if !isRace(err) {
			return Result{}, err
		}
		log.Printf("[WARN] scan %s attempt %d: %s lost race: %v", who.ID, attempt, d.Kind, err)
		lastErr = err
	}
	return Result{}, fmt.Errorf("%w: %v", ErrConcurrentScanConflict, lastErr)
}

func isRace(err error) bool {
	return errors.Is(err, ErrDuplicateOpenSession) || errors.Is(err, ErrRecordNotOpen)
}
