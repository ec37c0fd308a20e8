package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
)

// EventLogWriter writes events and journals inside a caller-owned
// transaction using multi-row INSERTs.
type EventLogWriter struct {
	dialect Dialect
}

// EventRow represents a row in events
type EventRow struct {
	Sequence  int64
	EventType string
	CommandID string
	Epoch     uint64
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
	Timestamp int64
}

// JournalRow represents a row in journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	Epoch         uint64
	Timestamp     int64
}

func NewEventLogWriter(d Dialect) *EventLogWriter {
	return &EventLogWriter{dialect: d}
}

// EventRows converts sealed envelopes to rows.
func EventRows(envs []*event.EventEnvelope) ([]EventRow, error) {
	rows := make([]EventRow, 0, len(envs))
	for _, env := range envs {
		payload, err := event.MarshalPayload(env.Payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, EventRow{
			Sequence:  env.Sequence,
			EventType: env.EventType.String(),
			CommandID: env.CommandID,
			Epoch:     env.Epoch,
			Payload:   payload,
			StateHash: append([]byte(nil), env.StateHash[:]...),
			PrevHash:  append([]byte(nil), env.PrevHash[:]...),
			Timestamp: env.Timestamp,
		})
	}
	return rows, nil
}

// JournalRows converts a ledger batch to rows.
func JournalRows(batch *ledger.Batch) []JournalRow {
	if batch.Empty() {
		return nil
	}
	rows := make([]JournalRow, 0, len(batch.Journals))
	for _, j := range batch.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount,
			JournalType:   int32(j.JournalType),
			Epoch:         j.Epoch,
			Timestamp:     j.Timestamp,
		})
	}
	return rows
}

// WriteEventBatch writes a batch of events using multi-row INSERT. A
// sequence that already exists fails the transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO events
		(sequence, event_type, command_id, epoch, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*8)

	for _, e := range events {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			e.Sequence, e.EventType, e.CommandID, int64(e.Epoch),
			string(e.Payload), e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	if _, err := tx.ExecContext(ctx, w.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

// WriteJournalBatch writes a batch of journal entries.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, epoch, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*10)

	for _, j := range journals {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount,
			j.JournalType, int64(j.Epoch), j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	if _, err := tx.ExecContext(ctx, w.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}
