package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentcasino/engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth for the persisted layer. Bet/payout/pool quantities are stored
// as NUMERIC and scanned back as TEXT, the same pattern the teacher's
// market/ledger tables use for exact decimal precision — kept here even
// though these columns hold wei integers, not decimals, since NUMERIC
// is still the right column type for arbitrary-precision base units
// pgx has no native big.Int binding for.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_snapshots (agent, status, agent_deposit, casino_deposit, agent_balance, casino_balance, nonce, games_played, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (agent) DO UPDATE SET
		   status = EXCLUDED.status, agent_deposit = EXCLUDED.agent_deposit,
		   casino_deposit = EXCLUDED.casino_deposit, agent_balance = EXCLUDED.agent_balance,
		   casino_balance = EXCLUDED.casino_balance, nonce = EXCLUDED.nonce,
		   games_played = EXCLUDED.games_played`,
		snap.Agent.Hex(), snap.Status, snap.AgentDeposit, snap.CasinoDeposit,
		snap.AgentBalance, snap.CasinoBalance, snap.Nonce, snap.GamesPlayed, snap.OpenedAt,
	)
	return err
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, agent common.Address) (*model.Snapshot, error) {
	var snap model.Snapshot
	var agentHex string
	err := s.pool.QueryRow(ctx,
		`SELECT agent, status, agent_deposit, casino_deposit, agent_balance, casino_balance, nonce, games_played, opened_at
		 FROM channel_snapshots WHERE agent = $1`, agent.Hex()).
		Scan(&agentHex, &snap.Status, &snap.AgentDeposit, &snap.CasinoDeposit,
			&snap.AgentBalance, &snap.CasinoBalance, &snap.Nonce, &snap.GamesPlayed, &snap.OpenedAt)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", agent, err)
	}
	snap.Agent = common.HexToAddress(agentHex)
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent, status, agent_deposit, casino_deposit, agent_balance, casino_balance, nonce, games_played, opened_at
		 FROM channel_snapshots ORDER BY opened_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var agentHex string
		if err := rows.Scan(&agentHex, &snap.Status, &snap.AgentDeposit, &snap.CasinoDeposit,
			&snap.AgentBalance, &snap.CasinoBalance, &snap.Nonce, &snap.GamesPlayed, &snap.OpenedAt); err != nil {
			return nil, err
		}
		snap.Agent = common.HexToAddress(agentHex)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) InsertRound(ctx context.Context, r *model.RoundRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO round_records (agent, game, bet, payout, won, multiplier, reels, choice, result, picked_number, draw_id, ticket_count, nonce, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.Agent.Hex(), r.Game, bigOrZero(r.Bet).String(), bigOrZero(r.Payout).String(), r.Won,
		r.Multiplier, r.Reels, r.Choice, r.Result, r.PickedNumber, r.DrawID, r.TicketCount, r.Nonce, r.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetRoundsByAgent(ctx context.Context, agent common.Address) ([]model.RoundRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent, game, bet::TEXT, payout::TEXT, won, multiplier, reels, choice, result, picked_number, draw_id, ticket_count, nonce, timestamp
		 FROM round_records WHERE agent = $1 ORDER BY timestamp`, agent.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []model.RoundRecord
	for rows.Next() {
		var r model.RoundRecord
		var agentHex, betS, payoutS string
		if err := rows.Scan(&agentHex, &r.Game, &betS, &payoutS, &r.Won, &r.Multiplier, &r.Reels,
			&r.Choice, &r.Result, &r.PickedNumber, &r.DrawID, &r.TicketCount, &r.Nonce, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Agent = common.HexToAddress(agentHex)
		r.Bet, _ = new(big.Int).SetString(betS, 10)
		r.Payout, _ = new(big.Int).SetString(payoutS, 10)
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (s *PostgresStore) SavePendingCommit(ctx context.Context, c *model.PendingCommit) error {
	params, err := json.Marshal(c.Params)
	if err != nil {
		return fmt.Errorf("marshal pending commit params: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_commits (agent, game, casino_seed, commitment, bet_amount, params, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)
		 ON CONFLICT (agent, game) DO UPDATE SET
		   casino_seed = EXCLUDED.casino_seed, commitment = EXCLUDED.commitment,
		   bet_amount = EXCLUDED.bet_amount, params = EXCLUDED.params, timestamp = EXCLUDED.timestamp`,
		c.Agent.Hex(), c.Game, c.CasinoSeed, c.Commitment, bigOrZero(c.BetAmount).String(), params, c.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetPendingCommit(ctx context.Context, agent common.Address, game string) (*model.PendingCommit, error) {
	var c model.PendingCommit
	var agentHex, betS string
	var params []byte
	err := s.pool.QueryRow(ctx,
		`SELECT agent, game, casino_seed, commitment, bet_amount::TEXT, params, timestamp
		 FROM pending_commits WHERE agent = $1 AND game = $2`, agent.Hex(), game).
		Scan(&agentHex, &c.Game, &c.CasinoSeed, &c.Commitment, &betS, &params, &c.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("get pending commit %s/%s: %w", agent, game, err)
	}
	c.Agent = common.HexToAddress(agentHex)
	c.BetAmount, _ = new(big.Int).SetString(betS, 10)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Params); err != nil {
			return nil, fmt.Errorf("unmarshal pending commit params: %w", err)
		}
	}
	return &c, nil
}

func (s *PostgresStore) DeletePendingCommit(ctx context.Context, agent common.Address, game string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_commits WHERE agent = $1 AND game = $2`, agent.Hex(), game)
	return err
}

func (s *PostgresStore) SaveLottoDraw(ctx context.Context, d *model.LottoDraw) error {
	tickets := make(map[string][]int, len(d.Tickets))
	for addr, picks := range d.Tickets {
		tickets[addr.Hex()] = picks
	}
	ticketsJSON, err := json.Marshal(tickets)
	if err != nil {
		return fmt.Errorf("marshal lotto tickets: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lotto_draws (draw_id, casino_seed, commitment, draw_time, tickets, total_pool, drawn, winning_number, drawn_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9)
		 ON CONFLICT (draw_id) DO UPDATE SET
		   tickets = EXCLUDED.tickets, total_pool = EXCLUDED.total_pool,
		   drawn = EXCLUDED.drawn, winning_number = EXCLUDED.winning_number, drawn_at = EXCLUDED.drawn_at`,
		d.DrawID, d.CasinoSeed, d.Commitment, d.DrawTime, ticketsJSON, bigOrZero(d.TotalPool).String(), d.Drawn, d.WinningNumber, d.DrawnAt,
	)
	return err
}

func (s *PostgresStore) GetLottoDraw(ctx context.Context, drawID string) (*model.LottoDraw, error) {
	var d model.LottoDraw
	var poolS string
	var ticketsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT draw_id, casino_seed, commitment, draw_time, tickets, total_pool::TEXT, drawn, winning_number, drawn_at
		 FROM lotto_draws WHERE draw_id = $1`, drawID).
		Scan(&d.DrawID, &d.CasinoSeed, &d.Commitment, &d.DrawTime, &ticketsJSON, &poolS, &d.Drawn, &d.WinningNumber, &d.DrawnAt)
	if err != nil {
		return nil, fmt.Errorf("get lotto draw %s: %w", drawID, err)
	}
	d.TotalPool, _ = new(big.Int).SetString(poolS, 10)
	if err := unmarshalTickets(ticketsJSON, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListPendingDraws(ctx context.Context, at time.Time) ([]model.LottoDraw, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT draw_id, casino_seed, commitment, draw_time, tickets, total_pool::TEXT, drawn, winning_number, drawn_at
		 FROM lotto_draws WHERE drawn = FALSE AND draw_time <= $1`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var draws []model.LottoDraw
	for rows.Next() {
		var d model.LottoDraw
		var poolS string
		var ticketsJSON []byte
		if err := rows.Scan(&d.DrawID, &d.CasinoSeed, &d.Commitment, &d.DrawTime, &ticketsJSON, &poolS, &d.Drawn, &d.WinningNumber, &d.DrawnAt); err != nil {
			return nil, err
		}
		d.TotalPool, _ = new(big.Int).SetString(poolS, 10)
		if err := unmarshalTickets(ticketsJSON, &d); err != nil {
			return nil, err
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal event result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (ts, type, action, agent, result) VALUES ($1, $2, $3, $4, $5)`,
		ev.Timestamp, ev.Type, ev.Action, ev.Agent.Hex(), result,
	)
	return err
}

func (s *PostgresStore) GetEventsByAgent(ctx context.Context, agent common.Address) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, type, action, agent, result FROM events WHERE agent = $1 ORDER BY ts`, agent.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var agentHex string
		var result []byte
		if err := rows.Scan(&e.Timestamp, &e.Type, &e.Action, &agentHex, &result); err != nil {
			return nil, err
		}
		e.Agent = common.HexToAddress(agentHex)
		if len(result) > 0 {
			var v interface{}
			if err := json.Unmarshal(result, &v); err == nil {
				e.Result = v
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func unmarshalTickets(data []byte, d *model.LottoDraw) error {
	if len(data) == 0 {
		return nil
	}
	var raw map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal lotto tickets: %w", err)
	}
	d.Tickets = make(map[common.Address][]int, len(raw))
	for hex, picks := range raw {
		d.Tickets[common.HexToAddress(hex)] = picks
	}
	return nil
}
