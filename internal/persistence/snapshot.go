package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
)

// Load reads the committed state for engine recovery. The tables are
// written in the same transaction as the events, so no replay is needed;
// the event log is only read back to verify the hash chain.
func (s *Store) Load(ctx context.Context, warmCommands int) (*core.State, error) {
	st := &core.State{
		Watermark: uint256.NewInt(0),
		Balances:  make(map[ledger.AccountKey]int64),
	}

	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT sequence, state_hash FROM engine_state WHERE id = 1`).Scan(&st.Sequence, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		st.StateHash = core.GenesisHash()
	case err != nil:
		return nil, fmt.Errorf("load engine state: %w", err)
	default:
		copy(st.StateHash[:], hash)
	}

	if st.Rounds, err = s.ListRounds(ctx, 0, 0); err != nil {
		return nil, err
	}
	if st.Bets, err = s.listBets(ctx, `SELECT epoch, participant, position, amount, claimed FROM bets ORDER BY epoch, participant`); err != nil {
		return nil, err
	}

	var treasury int64
	err = s.db.QueryRowContext(ctx, `SELECT balance FROM treasury WHERE id = 1`).Scan(&treasury)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load treasury: %w", err)
	}
	st.Treasury = uint64(treasury)

	var watermark string
	err = s.db.QueryRowContext(ctx, `SELECT watermark FROM oracle_state WHERE id = 1`).Scan(&watermark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load oracle watermark: %w", err)
	}
	if watermark != "" {
		if st.Watermark, err = uint256.FromDecimal(watermark); err != nil {
			return nil, fmt.Errorf("parse watermark %q: %w", watermark, err)
		}
	}

	if st.Balances, err = s.Balances(ctx); err != nil {
		return nil, err
	}
	if warmCommands > 0 {
		if st.Commands, err = s.RecentCommands(ctx, warmCommands); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Balances returns every ledger account balance.
func (s *Store) Balances(ctx context.Context) (map[ledger.AccountKey]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_path, balance FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[ledger.AccountKey]int64)
	for rows.Next() {
		var path string
		var bal int64
		if err := rows.Scan(&path, &bal); err != nil {
			return nil, err
		}
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("balance row: %w", err)
		}
		out[key] = bal
	}
	return out, rows.Err()
}

// RecentCommands returns the most recently recorded command results.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]core.CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT command_type, caller, request_id, result
		FROM commands ORDER BY sequence DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("load commands: %w", err)
	}
	defer rows.Close()

	var out []core.CommandRecord
	for rows.Next() {
		var rec core.CommandRecord
		var caller, raw string
		if err := rows.Scan(&rec.CommandType, &caller, &rec.RequestID, &raw); err != nil {
			return nil, err
		}
		rec.Caller = common.HexToAddress(caller)
		if err := json.Unmarshal([]byte(raw), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", rec.RequestID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadEvents returns up to limit events with sequence >= from, in order.
func (s *Store) LoadEvents(ctx context.Context, from int64, limit int) ([]*event.EventEnvelope, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT sequence, event_type, command_id, epoch, payload, state_hash, prev_hash, timestamp
		FROM events
		WHERE sequence >= ?
		ORDER BY sequence ASC
		LIMIT ?`), from, limit)
	if err != nil {
		return nil, fmt.Errorf("load events from %d: %w", from, err)
	}
	defer rows.Close()

	var out []*event.EventEnvelope
	for rows.Next() {
		var (
			env             event.EventEnvelope
			typ, payload    string
			epoch           int64
			stateHash, prev []byte
		)
		if err := rows.Scan(&env.Sequence, &typ, &env.CommandID, &epoch, &payload, &stateHash, &prev, &env.Timestamp); err != nil {
			return nil, err
		}
		env.EventType = event.ParseEventType(typ)
		env.Epoch = uint64(epoch)
		if env.Payload, err = event.UnmarshalPayload(env.EventType, []byte(payload)); err != nil {
			return nil, fmt.Errorf("event %d: %w", env.Sequence, err)
		}
		copy(env.StateHash[:], stateHash)
		copy(env.PrevHash[:], prev)
		out = append(out, &env)
	}
	return out, rows.Err()
}

// VerifyEventLog re-walks the hash chain over the whole event log and
// returns the tip and number of events checked.
func (s *Store) VerifyEventLog(ctx context.Context, batchSize int) ([32]byte, int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	tip := core.GenesisHash()
	var n int64
	from := int64(1)
	for {
		envs, err := s.LoadEvents(ctx, from, batchSize)
		if err != nil {
			return tip, n, err
		}
		if len(envs) == 0 {
			return tip, n, nil
		}
		for _, env := range envs {
			if env.Sequence != from {
				return tip, n, fmt.Errorf("sequence gap: expected %d, got %d", from, env.Sequence)
			}
			from++
		}
		if tip, err = core.VerifyChain(tip, envs); err != nil {
			return tip, n, err
		}
		n += int64(len(envs))
	}
}

func scanRound(rows *sql.Rows) (*state.Round, error) {
	var (
		r                                      state.Round
		epoch, total, bull, bear, base, reward int64
		lockID, closeID                        string
	)
	if err := rows.Scan(
		&epoch, &r.StartTimestamp, &r.LockTimestamp, &r.CloseTimestamp, &r.LockDuration,
		&r.LockPrice, &r.ClosePrice, &lockID, &closeID,
		&total, &bull, &bear, &base, &reward,
		&r.Locked, &r.OracleCalled,
	); err != nil {
		return nil, err
	}
	r.Epoch = uint64(epoch)
	r.TotalAmount = uint64(total)
	r.BullAmount = uint64(bull)
	r.BearAmount = uint64(bear)
	r.RewardBaseCalAmount = uint64(base)
	r.RewardAmount = uint64(reward)

	var err error
	if r.LockOracleID, err = parseOracleID(lockID); err != nil {
		return nil, fmt.Errorf("round %d lock oracle id: %w", epoch, err)
	}
	if r.CloseOracleID, err = parseOracleID(closeID); err != nil {
		return nil, fmt.Errorf("round %d close oracle id: %w", epoch, err)
	}
	return &r, nil
}
