package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
)

// LookupResult implements core.DBIdempotencyChecker against the commands
// table.
func (s *Store) LookupResult(ctx context.Context, commandType string, caller common.Address, requestID string) (core.Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var raw string
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT result
		FROM commands
		WHERE command_type = ? AND caller = ? AND request_id = ?
	`), commandType, addressKey(caller), requestID).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return core.Result{}, false, nil // Not found - not a duplicate
	}
	if err != nil {
		return core.Result{}, false, err // DB error
	}

	var res core.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return core.Result{}, false, fmt.Errorf("decode stored result: %w", err)
	}
	return res, true, nil
}
